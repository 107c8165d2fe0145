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

package keyspace

import "github.com/valyala/fastrand"

type weightedEntry[T any] struct {
	value  T
	weight uint32
}

// weighted is a discrete distribution built once at load time and drawn
// from repeatedly on the hot path; drawing is a linear scan, which is
// fine for the small entry counts a keyspace declaration produces.
type weighted[T any] struct {
	entries []weightedEntry[T]
	total   uint32
}

func newWeighted[T any](entries []weightedEntry[T]) *weighted[T] {
	w := &weighted[T]{entries: entries}
	for _, e := range entries {
		w.total += e.weight
	}
	return w
}

func (w *weighted[T]) draw(rng *fastrand.RNG) T {
	if w.total == 0 {
		return w.entries[rng.Uint32n(uint32(len(w.entries)))].value
	}

	target := rng.Uint32n(w.total)
	var cumulative uint32

	for _, e := range w.entries {
		cumulative += e.weight
		if target < cumulative {
			return e.value
		}
	}

	return w.entries[len(w.entries)-1].value
}
