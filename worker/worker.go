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

package worker

import (
	"context"
	"crypto/tls"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fastrand"

	"github.com/nabbar/rpcperf/codec"
	liberr "github.com/nabbar/rpcperf/errors"
	"github.com/nabbar/rpcperf/errors/pool"
	"github.com/nabbar/rpcperf/histogram"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/nabbar/rpcperf/metrics"
	"github.com/nabbar/rpcperf/ratelimit"
	"github.com/nabbar/rpcperf/session"
)

const pollTimeout = 10 * time.Millisecond

// Config holds the per-worker tunables that do not change once the
// reactor starts.
type Config struct {
	Poolsize       int
	Nodelay        bool
	TLS            *tls.Config
	WindowDuration time.Duration
	WindowCount    int // 0 means run until the context is cancelled
}

// Worker is a single-threaded reactor: one readiness poller, one
// session slab, the connect/ready queues and the three ratelimiters
// that gate connects, reconnects and requests.
type Worker struct {
	id  int
	log *logrus.Entry
	cfg Config

	poller Poller
	codec  codec.Codec
	gen    *keyspace.Generator
	rng    *fastrand.RNG

	connectLimit   *ratelimit.Limiter
	reconnectLimit *ratelimit.Limiter
	requestLimit   *ratelimit.Limiter

	connectHeat *histogram.Heatmap
	requestHeat *histogram.Heatmap

	m *metrics.Registry

	connectQueue []string
	readyQueue   []int

	slab      map[int]*session.Session
	nextToken int

	windowsElapsed int

	teardownErrs pool.Pool
}

// New builds a Worker. The caller owns the lifetime of every injected
// dependency (codec, generator, limiters, heatmaps, registry) and may
// share them across several Workers.
func New(
	id int,
	log *logrus.Entry,
	cfg Config,
	c codec.Codec,
	gen *keyspace.Generator,
	connectLimit, reconnectLimit, requestLimit *ratelimit.Limiter,
	connectHeat, requestHeat *histogram.Heatmap,
	m *metrics.Registry,
) (*Worker, liberr.Error) {
	p, err := newPoller()
	if err != nil {
		return nil, liberr.New(uint16(ErrorPollerCreate), "cannot create readiness poller", err)
	}

	return &Worker{
		id:             id,
		log:            log,
		cfg:            cfg,
		poller:         p,
		codec:          c,
		gen:            gen,
		rng:            keyspace.NewRNG(),
		connectLimit:   connectLimit,
		reconnectLimit: reconnectLimit,
		requestLimit:   requestLimit,
		connectHeat:    connectHeat,
		requestHeat:    requestHeat,
		m:              m,
		slab:           make(map[int]*session.Session),
		teardownErrs:   pool.New(),
	}, nil
}

// Errors returns every socket teardown error (poller deregistration or
// close failures) observed since the worker started, or nil if none
// occurred. The hot path never surfaces these individually since a
// single bad fd must not stall the reactor; Run's caller inspects them
// once, after the loop exits.
func (w *Worker) Errors() error {
	return w.teardownErrs.Error()
}

// AddEndpoint enqueues Poolsize copies of addr on the connect queue and
// shuffles the queue so that multiple endpoints interleave their
// connection attempts instead of filling the slab address-by-address.
func (w *Worker) AddEndpoint(addr string) {
	n := w.cfg.Poolsize
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.connectQueue = append(w.connectQueue, addr)
	}
	rand.Shuffle(len(w.connectQueue), func(i, j int) {
		w.connectQueue[i], w.connectQueue[j] = w.connectQueue[j], w.connectQueue[i]
	})
}

// Run drives the four-phase reactor loop until ctx is cancelled or the
// configured window count elapses.
func (w *Worker) Run(ctx context.Context) error {
	var windowTick <-chan time.Time
	if w.cfg.WindowDuration > 0 {
		ticker := time.NewTicker(w.cfg.WindowDuration)
		defer ticker.Stop()
		windowTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return w.shutdown()
		case <-windowTick:
			w.m.Window.Inc()
			w.windowsElapsed++
			if w.cfg.WindowCount > 0 && w.windowsElapsed >= w.cfg.WindowCount {
				return w.shutdown()
			}
		default:
		}

		w.phaseConnect()
		w.phaseReady()

		events, err := w.poller.Wait(pollTimeout)
		if err != nil {
			w.log.WithError(err).Warn("poller wait failed")
			continue
		}

		for _, ev := range events {
			w.handleEvent(ev)
		}

		w.phaseReregister()
	}
}

func (w *Worker) shutdown() error {
	for token := range w.slab {
		w.disconnect(token)
	}
	if err := w.poller.Close(); err != nil {
		w.teardownErrs.Add(err)
	}
	return w.Errors()
}

// phaseConnect is P1: pop one address off the connect queue if the
// connect ratelimiter permits and open a non-blocking stream.
func (w *Worker) phaseConnect() {
	if len(w.connectQueue) == 0 {
		return
	}
	if !w.connectLimit.TryWait() {
		return
	}

	addr := w.connectQueue[0]
	w.connectQueue = w.connectQueue[1:]

	token := w.nextToken
	w.nextToken++

	s, err := session.Connect(token, addr, w.cfg.Nodelay, w.cfg.TLS)
	if err != nil {
		w.m.ConnectEx.Inc()
		w.connectQueue = append(w.connectQueue, addr)
		return
	}

	if regErr := w.poller.Add(token, s.Fd(), s.State.Interest()); regErr != nil {
		w.m.ConnectEx.Inc()
		_ = s.Close()
		w.connectQueue = append(w.connectQueue, addr)
		return
	}

	w.slab[token] = s
	w.m.Session.Inc()
}

// phaseReady is P2: either disconnect (reconnect churn) or encode and
// send one request for the token at the head of the ready queue.
func (w *Worker) phaseReady() {
	if len(w.readyQueue) == 0 {
		return
	}

	token := w.readyQueue[0]

	if w.reconnectLimit.TryWait() {
		w.readyQueue = w.readyQueue[1:]
		w.disconnect(token)
		return
	}

	if !w.requestLimit.TryWait() {
		return
	}

	w.readyQueue = w.readyQueue[1:]

	s, ok := w.slab[token]
	if !ok {
		return
	}

	req := w.gen.Generate(w.rng)

	var out []byte
	out = w.codec.Encode(out, req, w.rng)

	s.QueueWrite(out)
	w.m.Request.Inc()
	if n := requestGetKeys(req); n > 0 {
		w.m.RequestGet.Add(float64(n))
	}

	if err := w.poller.Modify(token, s.Fd(), s.State.Interest()); err != nil {
		w.disconnect(token)
	}
}

// requestGetKeys returns how many keys a request reads, for the
// request_get counter, which counts once per key in a batch rather
// than once per request.
func requestGetKeys(req keyspace.Request) int {
	switch req.Verb {
	case keyspace.Get, keyspace.Hget:
		if n := len(req.InnerKeys); n > 0 {
			return n
		}
		return 1
	default:
		return 0
	}
}

// handleEvent is the per-event handler of a single readiness event.
func (w *Worker) handleEvent(ev Event) {
	s, ok := w.slab[ev.Token]
	if !ok {
		return
	}

	if ev.Error {
		if s.State == session.Handshaking || s.State == session.Connecting {
			w.m.ConnectEx.Inc()
		}
		w.disconnect(ev.Token)
		return
	}

	if s.State == session.Handshaking {
		if err := s.DoHandshake(); err != nil {
			if err == session.ErrWouldBlock {
				w.reregister(ev.Token, s)
				return
			}
			w.m.ConnectEx.Inc()
			w.disconnect(ev.Token)
			return
		}

		w.onConnected(ev.Token, s)
	}

	if ev.Readable {
		w.handleReadable(ev.Token, s)
		if s.State == session.Closed {
			return
		}
	}

	if ev.Writable {
		if s.State == session.Connecting {
			w.onConnected(ev.Token, s)
		} else if s.HasPendingWrite() {
			if _, err := s.FlushToSocket(); err != nil {
				if err != session.ErrWouldBlock {
					w.disconnect(ev.Token)
					return
				}
			}
		}
	}

	w.reregister(ev.Token, s)
}

func (w *Worker) onConnected(token int, s *session.Session) {
	s.MarkWritableConnected()
	w.connectHeat.Record(uint64(time.Since(s.Timestamp).Nanoseconds()))
	w.m.Connect.Inc()
	w.m.Open.Inc()
	if s.DidResume() {
		w.m.SessionReuse.Inc()
	}
	w.readyQueue = append(w.readyQueue, token)
}

func (w *Worker) handleReadable(token int, s *session.Session) {
	n, err := s.FillFromSocket()
	w.m.SessionRecv.Inc()

	if err != nil && err != session.ErrWouldBlock {
		w.m.SessionRecvEx.Inc()
		w.disconnect(token)
		return
	}

	if n == 0 && err == nil && s.Connected {
		w.disconnect(token)
		return
	}

	if n > 0 {
		w.m.SessionRecvByte.Add(float64(n))
		w.drainDecode(token, s)
	}
}

func (w *Worker) drainDecode(token int, s *session.Session) {
	for {
		res := w.codec.Decode(s.ReadBuffer())

		switch res.Status {
		case codec.Ok:
			w.m.Response.Inc()
			if res.Hits > 0 {
				w.m.ResponseHit.Add(float64(res.Hits))
			}
			w.requestHeat.Record(uint64(time.Since(s.Timestamp).Nanoseconds()))
			s.Consume(res.Consumed)
			w.readyQueue = append(w.readyQueue, token)
		case codec.Incomplete:
			return
		default:
			w.m.ResponseEx.Inc()
			w.disconnect(token)
			return
		}

		if len(s.ReadBuffer()) == 0 {
			return
		}
	}
}

func (w *Worker) reregister(token int, s *session.Session) {
	if s.State == session.Closed {
		return
	}
	_ = w.poller.Modify(token, s.Fd(), s.State.Interest())
}

// phaseReregister is P4, a deliberate no-op: every transition already
// reregisters inline in handleEvent, so there is nothing left pending
// once the event loop finishes a pass.
func (w *Worker) phaseReregister() {}

// disconnect implements the disconnect protocol: deregister, close,
// drop from the slab and requeue the peer address for reconnect.
func (w *Worker) disconnect(token int) {
	s, ok := w.slab[token]
	if !ok {
		return
	}

	if err := w.poller.Remove(s.Fd()); err != nil {
		w.teardownErrs.Add(err)
	}

	if s.Connected {
		w.m.Open.Dec()
	}

	peer := s.Peer
	if err := s.Close(); err != nil {
		w.teardownErrs.Add(err)
	}
	w.m.Close.Inc()

	delete(w.slab, token)
	w.connectQueue = append(w.connectQueue, peer)

	for i, t := range w.readyQueue {
		if t == token {
			w.readyQueue = append(w.readyQueue[:i], w.readyQueue[i+1:]...)
			break
		}
	}
}
