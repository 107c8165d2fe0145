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

// Package histogram implements a fixed-precision log-linear bucketed
// counter array used to record latency samples without locking on the
// hot insert path.
package histogram

import (
	"math"
	"sync/atomic"

	liberr "github.com/nabbar/rpcperf/errors"
)

// Histogram is a flat array of atomic counters plus a too-high overflow
// counter, bucketed on a log-linear scheme: exact counting below 10^p,
// geometrically widening buckets above it, up to a configured maximum.
type Histogram struct {
	precision uint8
	maximum   uint64
	linear    uint64 // 10^precision
	buckets   []atomic.Uint64
	tooHigh   atomic.Uint64
}

// New builds a Histogram for precision p (1..5 significant decimal
// digits) and maximum value m.
func New(p uint8, m uint64) (*Histogram, liberr.Error) {
	if p < 1 || p > 5 {
		return nil, liberr.New(uint16(ErrorInvalidPrecision), "histogram precision must be between 1 and 5")
	}

	linear := pow10(uint64(p))
	if m <= linear {
		return nil, liberr.New(uint16(ErrorInvalidMaximum), "histogram maximum must be greater than 10^precision")
	}

	h := &Histogram{
		precision: p,
		maximum:   m,
		linear:    linear,
	}
	h.buckets = make([]atomic.Uint64, h.bucketCount()+1)

	return h, nil
}

func pow10(n uint64) uint64 {
	r := uint64(1)
	for i := uint64(0); i < n; i++ {
		r *= 10
	}
	return r
}

func log10Floor(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return uint64(math.Floor(math.Log10(float64(v))))
}

func (h *Histogram) bucketCount() uint64 {
	return h.indexOf(h.maximum) + 1
}

// indexOf maps a value to its bucket index following the log-linear
// scheme: exact below 10^p, widening geometric buckets above it.
func (h *Histogram) indexOf(v uint64) uint64 {
	p := uint64(h.precision)

	if v <= h.linear {
		return v
	}

	e := log10Floor(v)
	return h.linear +
		uint64(0.9*float64(h.linear)*float64(e-p)) +
		v/pow10(e-p+1) -
		pow10(p-1)
}

// saturatingAdd adds c to counter without wrapping: if the sum would
// overflow uint64 it clamps at math.MaxUint64 instead.
func saturatingAdd(counter *atomic.Uint64, c uint64) {
	for {
		old := counter.Load()
		sum := old + c
		if sum < old {
			sum = math.MaxUint64
		}
		if counter.CompareAndSwap(old, sum) {
			return
		}
	}
}

// Increment records one occurrence of value v with weight c. Counts
// saturate at math.MaxUint64 rather than wrapping.
func (h *Histogram) Increment(v uint64, c uint64) {
	if v > h.maximum {
		saturatingAdd(&h.tooHigh, c)
		return
	}

	idx := h.indexOf(v)
	if idx >= uint64(len(h.buckets)) {
		saturatingAdd(&h.tooHigh, c)
		return
	}

	saturatingAdd(&h.buckets[idx], c)
}

// Record is Increment with weight one, the common case on the request path.
func (h *Histogram) Record(v uint64) {
	h.Increment(v, 1)
}

// Total returns the sum of every bucket plus the overflow counter.
func (h *Histogram) Total() uint64 {
	var total uint64
	for i := range h.buckets {
		total += h.buckets[i].Load()
	}
	return total + h.tooHigh.Load()
}

// GetValue returns the upper bound represented by bucket index i.
func (h *Histogram) GetValue(i uint64) uint64 {
	p := uint64(h.precision)

	if i < h.linear {
		return i
	}

	// invert the widening formula: walk the exponent forward until the
	// next exponent's starting index would exceed i.
	e := p
	for {
		start := h.linear + uint64(0.9*float64(h.linear)*float64(e-p)) - pow10(p-1)
		width := pow10(e - p + 1)
		nextStart := h.linear + uint64(0.9*float64(h.linear)*float64(e+1-p))

		if i < nextStart || e >= 20 {
			offset := i - start
			return offset*width + width - 1
		}
		e++
	}
}

// MinValue returns the lower bound represented by bucket index i.
func (h *Histogram) MinValue(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	return h.GetValue(i-1) + 1
}

// Percentile returns the smallest value whose cumulative count is at
// least ceil(q*total), or the configured maximum if no bucket satisfies
// that (including when every sample landed in the overflow counter).
func (h *Histogram) Percentile(q float64) uint64 {
	total := h.Total()
	if total == 0 {
		return 0
	}

	target := uint64(math.Ceil(q * float64(total)))

	var cumulative uint64
	for i := range h.buckets {
		cumulative += h.buckets[i].Load()
		if cumulative >= target {
			return h.GetValue(uint64(i))
		}
	}

	return h.maximum
}

// Reset zeroes every bucket and the overflow counter. Used by the
// heatmap when a slice is reclaimed for reuse.
func (h *Histogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
	h.tooHigh.Store(0)
}

// Merge adds the contents of other into h, bucket by bucket. Both
// histograms must share the same precision and maximum.
func (h *Histogram) Merge(other *Histogram) {
	for i := range h.buckets {
		if v := other.buckets[i].Load(); v != 0 {
			saturatingAdd(&h.buckets[i], v)
		}
	}
	if v := other.tooHigh.Load(); v != 0 {
		saturatingAdd(&h.tooHigh, v)
	}
}
