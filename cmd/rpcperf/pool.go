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

package main

import (
	"time"

	"github.com/nabbar/rpcperf/admin"
	"github.com/nabbar/rpcperf/config"
	liberr "github.com/nabbar/rpcperf/errors"
	"github.com/nabbar/rpcperf/histogram"
	"github.com/nabbar/rpcperf/logger"
	"github.com/nabbar/rpcperf/metrics"
	"github.com/nabbar/rpcperf/ratelimit"
	"github.com/nabbar/rpcperf/worker"
)

// heatmapSlices and heatmapSpan size the rolling latency window every
// Heatmap keeps, independent of the reporting interval.
const (
	heatmapPrecision uint8 = 2
	heatmapMaximum   uint64 = 60_000_000_000 // 60s in nanoseconds
	heatmapSlices    int    = 60
	heatmapSpan             = time.Second
)

// pool is every shared object a worker goroutine needs plus the admin
// reporter that observes them, assembled once from a loaded Config.
type pool struct {
	workers  []*worker.Worker
	reporter *admin.Reporter
	log      *logger.Logger
}

// buildPool wires a Config into a ready-to-run set of workers sharing
// one codec, one keyspace generator, one metrics registry and two
// heatmaps, plus an admin reporter bound to the same objects.
func buildPool(cfg *config.Config, log *logger.Logger) (*pool, liberr.Error) {
	codec, err := cfg.BuildCodec()
	if err != nil {
		return nil, err
	}

	gen, err := cfg.BuildKeyspaces()
	if err != nil {
		return nil, err
	}

	tlsCfg, err := cfg.BuildTLS()
	if err != nil {
		return nil, err
	}

	connectModel, err := ratelimit.ParseModel(cfg.Connection.RatelimitModel)
	if err != nil {
		return nil, err
	}
	requestModel, err := ratelimit.ParseModel(cfg.Request.RatelimitModel)
	if err != nil {
		return nil, err
	}

	connectLimit := ratelimit.New(connectModel, cfg.Connection.Ratelimit)
	reconnectLimit := ratelimit.New(connectModel, cfg.Connection.Reconnect)
	requestLimit := ratelimit.New(requestModel, cfg.Request.Ratelimit)

	connectHeat, err := histogram.NewHeatmap(heatmapPrecision, heatmapMaximum, heatmapSlices, heatmapSpan)
	if err != nil {
		return nil, err
	}
	requestHeat, err := histogram.NewHeatmap(heatmapPrecision, heatmapMaximum, heatmapSlices, heatmapSpan)
	if err != nil {
		return nil, err
	}

	registry := metrics.New()

	endpoints := cfg.Target.Endpoints
	if cfg.Target.UsesDiscovery() {
		return nil, liberr.New(uint16(ErrorResolverUnconfigured), "target uses service discovery but no Resolver is wired")
	}
	if len(endpoints) == 0 {
		return nil, liberr.New(uint16(ErrorResolverUnconfigured), "target has no endpoints to connect to")
	}

	threads := cfg.General.Threads
	if threads <= 0 {
		threads = 1
	}

	windows := cfg.General.Windows
	if cfg.General.Service {
		windows = 0
	}

	workers := make([]*worker.Worker, 0, threads)
	for i := 0; i < threads; i++ {
		wc := worker.Config{
			Poolsize:       cfg.Connection.Poolsize,
			Nodelay:        cfg.Connection.TCPNoDelay,
			TLS:            tlsCfg,
			WindowDuration: cfg.General.Interval.Time(),
			WindowCount:    windows,
		}

		w, werr := worker.New(
			i,
			log.WithComponent("worker").WithField("id", i),
			wc,
			codec,
			gen,
			connectLimit, reconnectLimit, requestLimit,
			connectHeat, requestHeat,
			registry,
		)
		if werr != nil {
			return nil, werr
		}

		for _, addr := range endpoints {
			w.AddEndpoint(addr)
		}

		workers = append(workers, w)
	}

	var reporter *admin.Reporter
	if cfg.General.Admin != "" {
		reporter = admin.NewReporter(log.WithComponent("admin"), registry, connectHeat, requestHeat, requestLimit)
	}

	return &pool{workers: workers, reporter: reporter, log: log}, nil
}
