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

// Package ratelimit implements the token-bucket limiter shared by the
// worker pool's connect, reconnect and request gates. Three refill
// disciplines are supported: a constant quantum, a uniformly jittered
// quantum and a Gaussian-jittered quantum.
package ratelimit

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	libatm "github.com/nabbar/rpcperf/atomic"
	liberr "github.com/nabbar/rpcperf/errors"
	"golang.org/x/time/rate"
)

// Model selects the refill discipline of a Limiter.
type Model uint8

const (
	Smooth Model = iota
	Uniform
	Normal
)

// ParseModel accepts the configuration strings "smooth", "uniform" and
// "normal".
func ParseModel(s string) (Model, liberr.Error) {
	switch s {
	case "", "smooth":
		return Smooth, nil
	case "uniform":
		return Uniform, nil
	case "normal":
		return Normal, nil
	default:
		return Smooth, liberr.New(uint16(ErrorUnknownModel), "unknown ratelimit refill model: "+s)
	}
}

// Limiter is a token bucket shared by every worker goroutine contending
// for the same resource (connect slots, reconnects, requests). Its own
// fields are held in atomics, so SetRate can be called concurrently
// from the admin reporter. The Uniform and Normal models are lock-free;
// the Smooth model goes through golang.org/x/time/rate, whose Limiter
// guards its state with a mutex.
type Limiter struct {
	model   Model
	rate    libatm.Value[uint64]        // events per second, 0 means unlimited
	quantum libatm.Value[int64]         // nanoseconds
	bucket  libatm.Value[*rate.Limiter] // used only for the Smooth model
	next    libatm.Value[int64]         // next permitted instant, unix nanoseconds, for Uniform/Normal
}

// New builds a Limiter producing eventsPerSecond tokens using model m.
// A rate of zero means "unlimited": TryWait always succeeds.
func New(m Model, eventsPerSecond uint64) *Limiter {
	l := &Limiter{
		model:   m,
		rate:    libatm.NewValue[uint64](),
		quantum: libatm.NewValueDefault[int64](-1, -1),
		bucket:  libatm.NewValue[*rate.Limiter](),
		next:    libatm.NewValueDefault[int64](-1, -1),
	}
	l.SetRate(eventsPerSecond)
	return l
}

// SetRate changes the limiter's rate live, as exercised by the admin
// reporter's PUT /ratelimit/request endpoint.
func (l *Limiter) SetRate(eventsPerSecond uint64) {
	l.rate.Store(eventsPerSecond)

	if eventsPerSecond == 0 {
		l.bucket.Store(nil)
		return
	}

	l.quantum.Store(int64(float64(time.Second) / float64(eventsPerSecond)))

	switch l.model {
	case Smooth:
		l.bucket.Store(rate.NewLimiter(rate.Limit(eventsPerSecond), 1))
	default:
		l.next.Store(time.Now().UnixNano())
	}
}

// Rate returns the currently configured rate, in events per second.
func (l *Limiter) Rate() uint64 {
	return l.rate.Load()
}

// TryWait is the non-blocking hot-path check used by the reactor loop
// on every iteration; it never sleeps. The Uniform/Normal path gates on
// a compare-and-swap of the next-permitted-instant and takes no lock.
// The Smooth path calls golang.org/x/time/rate's Allow, which briefly
// holds that limiter's internal mutex.
func (l *Limiter) TryWait() bool {
	if l.rate.Load() == 0 {
		return true
	}

	switch l.model {
	case Smooth:
		b := l.bucket.Load()
		if b == nil {
			return true
		}
		return b.Allow()
	default:
		for {
			now := time.Now().UnixNano()
			next := l.next.Load()

			if now < next {
				return false
			}

			if l.next.CompareAndSwap(next, now+int64(l.nextQuantum())) {
				return true
			}
		}
	}
}

// Wait blocks until a token is available or ctx is cancelled. It is not
// used on the worker hot path, which always uses TryWait instead.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.TryWait() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// nextQuantum draws the jittered interval for the Uniform and Normal
// models. Safe to call concurrently: it only reads the atomically
// stored quantum.
func (l *Limiter) nextQuantum() time.Duration {
	q := float64(l.quantum.Load())

	switch l.model {
	case Uniform:
		return time.Duration(0.5*q + rand.Float64()*q)
	case Normal:
		sigma := q / 3
		jittered := rand.NormFloat64()*sigma + q
		if jittered < 0 {
			jittered = 0
		}
		return time.Duration(math.Round(jittered))
	default:
		return time.Duration(q)
	}
}
