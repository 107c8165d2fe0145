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
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/nabbar/rpcperf/config"
	liberr "github.com/nabbar/rpcperf/errors"
	"github.com/nabbar/rpcperf/logger"
)

func newRunCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		dumpConfig bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "load test the configured target",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return liberr.New(uint16(ErrorConfigLoad), "cannot load configuration", err)
			}

			if dumpConfig {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			lvl, lerr := logger.ParseLevel(logLevel)
			if lerr != nil {
				lvl = logger.InfoLevel
			}

			var log *logger.Logger
			if isatty.IsTerminal(os.Stderr.Fd()) {
				log = logger.NewText(lvl, os.Stderr)
			} else {
				log = logger.New(lvl, os.Stderr)
			}

			return runLoad(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "rpcperf.toml", "path to the configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: panic, fatal, error, warn, info, debug, trace")
	cmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration as JSON and exit")

	return cmd
}

func runLoad(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPool(cfg, log)
	if err != nil {
		return err
	}

	warmUp(ctx, p, cfg)

	grp, gctx := errgroup.WithContext(ctx)

	// the admin goroutines stop once every worker has returned, so a
	// run bounded by a window count ends even with an admin listener.
	actx, stopAdmin := context.WithCancel(gctx)
	defer stopAdmin()
	workersDone := make(chan struct{}, len(p.workers))

	for _, w := range p.workers {
		w := w
		grp.Go(func() error {
			defer func() { workersDone <- struct{}{} }()
			return w.Run(gctx)
		})
	}

	if p.reporter != nil {
		grp.Go(func() error {
			for range p.workers {
				<-workersDone
			}
			stopAdmin()
			return nil
		})
		grp.Go(func() error {
			return p.reporter.Listen(actx, cfg.General.Admin)
		})
		grp.Go(func() error {
			p.reporter.RunWindowLog(actx, cfg.General.Interval.Time())
			return nil
		})
	}

	werr := grp.Wait()

	for _, w := range p.workers {
		if teardownErr := w.Errors(); teardownErr != nil {
			log.WithComponent("worker").WithError(teardownErr).Warn("teardown errors during shutdown")
		}
	}

	if werr != nil && werr != context.Canceled {
		return liberr.New(uint16(ErrorWorkerFailed), "worker pool exited with an error", werr)
	}

	return nil
}

// warmUp renders a two-second connect-phase progress bar on a terminal
// before the workers start, purely cosmetic: it does not observe real
// connects, and the workers gate connect attempts with their own
// ratelimiter regardless of whether anyone is watching.
func warmUp(ctx context.Context, p *pool, cfg *config.Config) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return
	}

	total := int64(cfg.Connection.Poolsize) * int64(len(cfg.Target.Endpoints)) * int64(len(p.workers))
	if total <= 0 {
		return
	}

	progress := mpb.NewWithContext(ctx)
	bar := progress.New(total,
		mpb.BarStyle(),
		mpb.PrependDecorators(decor.Name("connecting")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			bar.Abort(true)
			return
		default:
		}
		time.Sleep(50 * time.Millisecond)
	}
	bar.SetCurrent(total)
	progress.Wait()
}
