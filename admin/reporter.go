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

// Package admin serves the operator-facing HTTP surface: a Prometheus
// scrape endpoint, a JSON snapshot of the same counters plus latency
// percentiles, and a live request-ratelimit control, alongside a
// periodic window-summary log line.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	liberr "github.com/nabbar/rpcperf/errors"
	"github.com/nabbar/rpcperf/histogram"
	"github.com/nabbar/rpcperf/metrics"
	"github.com/nabbar/rpcperf/ratelimit"
)

// percentileCuts are the fixed quantiles reported alongside every
// latency snapshot.
var percentileCuts = []float64{0.25, 0.50, 0.75, 0.90, 0.99, 0.999, 0.9999}

// Percentiles is a named p25..p9999 cut of one heatmap, in nanoseconds.
type Percentiles struct {
	P25   uint64 `json:"p25"`
	P50   uint64 `json:"p50"`
	P75   uint64 `json:"p75"`
	P90   uint64 `json:"p90"`
	P99   uint64 `json:"p99"`
	P999  uint64 `json:"p999"`
	P9999 uint64 `json:"p9999"`
}

func percentilesOf(hm *histogram.Heatmap) Percentiles {
	return Percentiles{
		P25:   hm.Percentile(percentileCuts[0]),
		P50:   hm.Percentile(percentileCuts[1]),
		P75:   hm.Percentile(percentileCuts[2]),
		P90:   hm.Percentile(percentileCuts[3]),
		P99:   hm.Percentile(percentileCuts[4]),
		P999:  hm.Percentile(percentileCuts[5]),
		P9999: hm.Percentile(percentileCuts[6]),
	}
}

// Snapshot is the /metrics.json body: the counter/gauge snapshot plus
// connect and request latency percentiles.
type Snapshot struct {
	metrics.Snapshot
	ConnectLatency Percentiles `json:"connect_latency_ns"`
	RequestLatency Percentiles `json:"request_latency_ns"`
}

// rateUpdate is the PUT /ratelimit/request response body, reporting
// the rate in effect before and after the change.
type rateUpdate struct {
	Previous uint64 `json:"previous"`
	Current  uint64 `json:"current"`
}

// Reporter owns the admin HTTP surface for one worker pool.
type Reporter struct {
	log          *logrus.Entry
	engine       *gin.Engine
	registry     *metrics.Registry
	connectHeat  *histogram.Heatmap
	requestHeat  *histogram.Heatmap
	requestLimit *ratelimit.Limiter
	srv          *http.Server
}

// NewReporter builds a Reporter. log receives the periodic
// window-summary line; the heatmaps and registry are read-only from
// the reporter's perspective, requestLimit is the only one it mutates,
// via PUT /ratelimit/request.
func NewReporter(log *logrus.Entry, reg *metrics.Registry, connectHeat, requestHeat *histogram.Heatmap, requestLimit *ratelimit.Limiter) *Reporter {
	gin.SetMode(gin.ReleaseMode)

	r := &Reporter{
		log:          log,
		engine:       gin.New(),
		registry:     reg,
		connectHeat:  connectHeat,
		requestHeat:  requestHeat,
		requestLimit: requestLimit,
	}

	r.engine.GET("/", r.handleWelcome)
	r.engine.GET("/metrics", r.handleMetrics)
	r.engine.GET("/metrics.json", r.handleSnapshot)
	r.engine.GET("/vars.json", r.handleSnapshot)
	r.engine.GET("/admin/metrics.json", r.handleSnapshot)
	r.engine.GET("/vars", r.handleSnapshot)
	r.engine.PUT("/ratelimit/request", r.handleSetRequestRate)
	r.engine.NoRoute(r.handleSnapshot)

	return r
}

func (r *Reporter) handleWelcome(c *gin.Context) {
	c.String(http.StatusOK, "rpcperf admin\n")
}

func (r *Reporter) handleMetrics(c *gin.Context) {
	promhttp.HandlerFor(r.registry.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (r *Reporter) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, Snapshot{
		Snapshot:       r.registry.Snapshot(),
		ConnectLatency: percentilesOf(r.connectHeat),
		RequestLatency: percentilesOf(r.requestHeat),
	})
}

func (r *Reporter) handleSetRequestRate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	rate, perr := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if perr != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	previous := r.requestLimit.Rate()
	r.requestLimit.SetRate(rate)

	c.JSON(http.StatusOK, rateUpdate{Previous: previous, Current: rate})
}

// Listen starts serving the admin surface on addr and blocks until ctx
// is cancelled or the server fails.
func (r *Reporter) Listen(ctx context.Context, addr string) liberr.Error {
	r.srv = &http.Server{Addr: addr, Handler: r.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = r.srv.Close()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return liberr.New(uint16(ErrorListen), "admin listener failed", err)
		}
		return nil
	}
}

// RunWindowLog logs one summary line per interval until ctx is
// cancelled, reporting the delta of connect/request/response counters
// since the previous line alongside the current open-session gauge.
func (r *Reporter) RunWindowLog(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := r.registry.Snapshot()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := r.registry.Snapshot()
			r.log.WithFields(logrus.Fields{
				"connect":  cur.Connect - prev.Connect,
				"request":  cur.Request - prev.Request,
				"response": cur.Response - prev.Response,
				"open":     cur.Open,
			}).Info("window")
			prev = cur
		}
	}
}
