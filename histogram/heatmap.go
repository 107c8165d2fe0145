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

package histogram

import (
	"sync/atomic"
	"time"

	liberr "github.com/nabbar/rpcperf/errors"
)

// Heatmap is a ring of N histograms, each covering an equal duration D,
// used to keep a rolling window of recent latency distributions for the
// waterfall output and windowed percentile reporting.
type Heatmap struct {
	precision uint8
	maximum   uint64
	slices    []*Histogram
	duration  time.Duration
	started   int64 // unix nano, set on first Insert
	current   atomic.Int64
}

// NewHeatmap builds a Heatmap with n slices each covering duration d.
func NewHeatmap(p uint8, m uint64, n int, d time.Duration) (*Heatmap, liberr.Error) {
	hm := &Heatmap{
		precision: p,
		maximum:   m,
		slices:    make([]*Histogram, n),
		duration:  d,
	}

	for i := range hm.slices {
		h, err := New(p, m)
		if err != nil {
			return nil, err
		}
		hm.slices[i] = h
	}

	return hm, nil
}

// Insert advances the current slice to the one covering "now" (clearing
// any slices skipped over) and records v there with weight c.
func (hm *Heatmap) Insert(now time.Time, v uint64, c uint64) {
	nano := now.UnixNano()

	started := atomic.LoadInt64(&hm.started)
	if started == 0 {
		atomic.CompareAndSwapInt64(&hm.started, 0, nano)
		started = atomic.LoadInt64(&hm.started)
	}

	n := int64(len(hm.slices))
	target := (nano - started) / int64(hm.duration)
	if target < 0 {
		target = 0
	}

	prev := hm.current.Load()
	if target > prev {
		for s := prev + 1; s <= target; s++ {
			hm.slices[s%n].Reset()
		}
		hm.current.Store(target)
	}

	hm.slices[target%n].Increment(v, c)
}

// Record is Insert with weight one, sampled at time.Now().
func (hm *Heatmap) Record(v uint64) {
	hm.Insert(time.Now(), v, 1)
}

// Percentile aggregates every live slice's buckets and applies the
// single-histogram percentile formula over the combined counts.
func (hm *Heatmap) Percentile(q float64) uint64 {
	agg, err := New(hm.precision, hm.maximum)
	if err != nil {
		return 0
	}

	for _, s := range hm.slices {
		agg.Merge(s)
	}

	return agg.Percentile(q)
}

// Snapshot returns a fresh aggregate Histogram across all live slices,
// used by the admin reporter to render the waterfall and the fixed
// percentile cuts without holding a lock on the live slices.
func (hm *Heatmap) Snapshot() *Histogram {
	agg, err := New(hm.precision, hm.maximum)
	if err != nil {
		return nil
	}

	for _, s := range hm.slices {
		agg.Merge(s)
	}

	return agg
}
