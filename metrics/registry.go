/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package metrics exposes the named atomic counters and gauges the
// worker reactor updates on every completion, backed by a dedicated
// prometheus registry so the admin reporter can serve /metrics without
// pulling in the global default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds every counter and gauge the core is required to
// expose, pre-created so the hot path never touches a map.
type Registry struct {
	reg *prometheus.Registry

	Connect        prometheus.Counter
	ConnectEx      prometheus.Counter
	ConnectTimeout prometheus.Counter
	Request        prometheus.Counter
	RequestEx      prometheus.Counter
	RequestGet     prometheus.Counter
	Response       prometheus.Counter
	ResponseEx     prometheus.Counter
	ResponseHit    prometheus.Counter
	Close          prometheus.Counter
	Window         prometheus.Counter
	Session        prometheus.Counter
	Open           prometheus.Gauge
	SessionRecv    prometheus.Counter
	SessionRecvEx  prometheus.Counter
	SessionRecvByte prometheus.Counter
	SessionSend    prometheus.Counter
	SessionSendEx  prometheus.Counter
	SessionSendByte prometheus.Counter
	SessionReuse   prometheus.Counter
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpcperf",
		Name:      name,
		Help:      help,
	})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rpcperf",
		Name:      name,
		Help:      help,
	})
}

// New builds a Registry with every metric pre-registered against a
// fresh prometheus.Registry.
func New() *Registry {
	r := &Registry{
		reg:             prometheus.NewRegistry(),
		Connect:         counter("connect_total", "successful connection attempts"),
		ConnectEx:       counter("connect_ex_total", "failed connection or TLS handshake attempts"),
		ConnectTimeout:  counter("connect_timeout_total", "connection attempts that timed out"),
		Request:         counter("request_total", "requests encoded and sent"),
		RequestEx:       counter("request_ex_total", "requests that failed to encode"),
		RequestGet:      counter("request_get_total", "get-class requests, counted once per key in a batch"),
		Response:        counter("response_total", "responses successfully decoded"),
		ResponseEx:      counter("response_ex_total", "responses that failed to decode"),
		ResponseHit:     counter("response_hit_total", "get-class responses that were cache hits"),
		Close:           counter("close_total", "sessions torn down"),
		Window:          counter("window_total", "reporting windows elapsed"),
		Session:         counter("session_total", "sessions created since start"),
		Open:            gauge("open", "sessions currently connected"),
		SessionRecv:     counter("session_recv_total", "socket read calls"),
		SessionRecvEx:   counter("session_recv_ex_total", "socket read calls that failed"),
		SessionRecvByte: counter("session_recv_byte_total", "bytes read from sockets"),
		SessionSend:     counter("session_send_total", "socket write calls"),
		SessionSendEx:   counter("session_send_ex_total", "socket write calls that failed"),
		SessionSendByte: counter("session_send_byte_total", "bytes written to sockets"),
		SessionReuse:    counter("session_reuse_total", "TLS handshakes that resumed a prior session"),
	}

	r.reg.MustRegister(
		r.Connect, r.ConnectEx, r.ConnectTimeout,
		r.Request, r.RequestEx, r.RequestGet,
		r.Response, r.ResponseEx, r.ResponseHit,
		r.Close, r.Window, r.Session, r.Open,
		r.SessionRecv, r.SessionRecvEx, r.SessionRecvByte,
		r.SessionSend, r.SessionSendEx, r.SessionSendByte,
		r.SessionReuse,
	)

	return r
}

// Gatherer exposes the underlying prometheus registry to the admin
// package's promhttp handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Snapshot is a point-in-time copy of every counter/gauge value, used
// for the /metrics.json endpoint and the periodic window-summary log
// line.
type Snapshot struct {
	Connect         uint64
	ConnectEx       uint64
	ConnectTimeout  uint64
	Request         uint64
	RequestEx       uint64
	RequestGet      uint64
	Response        uint64
	ResponseEx      uint64
	ResponseHit     uint64
	Close           uint64
	Window          uint64
	Session         uint64
	Open            float64
	SessionRecv     uint64
	SessionRecvEx   uint64
	SessionRecvByte uint64
	SessionSend     uint64
	SessionSendEx   uint64
	SessionSendByte uint64
	SessionReuse    uint64
}

// Snapshot reads every metric's current value via the prometheus client
// Write() accessor, avoiding any parallel bookkeeping of raw atomics.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Connect:         readCounter(r.Connect),
		ConnectEx:       readCounter(r.ConnectEx),
		ConnectTimeout:  readCounter(r.ConnectTimeout),
		Request:         readCounter(r.Request),
		RequestEx:       readCounter(r.RequestEx),
		RequestGet:      readCounter(r.RequestGet),
		Response:        readCounter(r.Response),
		ResponseEx:      readCounter(r.ResponseEx),
		ResponseHit:     readCounter(r.ResponseHit),
		Close:           readCounter(r.Close),
		Window:          readCounter(r.Window),
		Session:         readCounter(r.Session),
		Open:            readGauge(r.Open),
		SessionRecv:     readCounter(r.SessionRecv),
		SessionRecvEx:   readCounter(r.SessionRecvEx),
		SessionRecvByte: readCounter(r.SessionRecvByte),
		SessionSend:     readCounter(r.SessionSend),
		SessionSendEx:   readCounter(r.SessionSendEx),
		SessionSendByte: readCounter(r.SessionSendByte),
		SessionReuse:    readCounter(r.SessionReuse),
	}
}

func readCounter(c prometheus.Counter) uint64 {
	var m dto.Metric
	_ = c.Write(&m)
	return uint64(m.GetCounter().GetValue())
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	_ = g.Write(&m)
	return m.GetGauge().GetValue()
}
