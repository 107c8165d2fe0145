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

// Package memcache implements the memcache ASCII protocol's get and set
// commands, including the multi-key batching form of get.
package memcache

import (
	"bytes"
	"strconv"

	"github.com/nabbar/rpcperf/codec"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/valyala/fastrand"
)

var (
	endMarker  = []byte("END\r\n")
	valuePfx   = []byte("VALUE")
	terminals  = [][]byte{[]byte("STORED\r\n"), []byte("NOT_STORED\r\n"), []byte("EXISTS\r\n"), []byte("NOT_FOUND\r\n"), []byte("DELETED\r\n"), []byte("TOUCHED\r\n")}
)

// Codec implements codec.Codec for the memcache ASCII protocol.
type Codec struct{}

// New returns a ready-to-use memcache Codec.
func New() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(out []byte, req keyspace.Request, _ *fastrand.RNG) []byte {
	switch req.Verb {
	case keyspace.Set:
		value := req.Key
		if len(req.Values) > 0 {
			value = req.Values[0]
		}

		out = append(out, "set "...)
		out = append(out, req.Key...)
		out = append(out, ' ', '0', ' ')
		out = strconv.AppendUint(out, uint64(req.TTL), 10)
		out = append(out, ' ')
		out = strconv.AppendInt(out, int64(len(value)), 10)
		out = append(out, "\r\n"...)
		out = append(out, value...)
		out = append(out, "\r\n"...)
		return out

	default: // Get and any other read verb addressed to memcache.
		out = append(out, "get "...)
		out = append(out, req.Key...)

		for _, k := range req.InnerKeys {
			out = append(out, ' ')
			out = append(out, k...)
		}

		out = append(out, "\r\n"...)
		return out
	}
}

func (c *Codec) Decode(buf []byte) codec.Result {
	for _, t := range terminals {
		if bytes.HasPrefix(buf, t) {
			return codec.Result{Status: codec.Ok, Consumed: len(t)}
		}
	}

	idx := bytes.Index(buf, endMarker)
	if idx < 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	frame := buf[:idx+len(endMarker)]
	hits := countValueLines(frame)

	return codec.Result{Status: codec.Ok, Consumed: len(frame), Hits: hits}
}

// countValueLines returns how many lines in frame begin with "VALUE",
// one per key a batched get matched. A multi-key get response carries
// one VALUE line per hit, so this is the hit count for the frame, not
// just a yes/no.
func countValueLines(frame []byte) int {
	n := 0
	for _, l := range bytes.Split(frame, []byte("\r\n")) {
		if bytes.HasPrefix(l, valuePfx) {
			n++
		}
	}
	return n
}
