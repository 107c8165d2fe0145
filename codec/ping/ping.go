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

// Package ping implements the trivial PING/pong wire protocol used as a
// baseline connectivity and latency check.
package ping

import (
	"bytes"

	"github.com/nabbar/rpcperf/codec"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/valyala/fastrand"
)

const crlf = "\r\n"

// Codec implements codec.Codec for the ping protocol.
type Codec struct{}

// New returns a ready-to-use ping Codec.
func New() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(out []byte, _ keyspace.Request, _ *fastrand.RNG) []byte {
	return append(out, "PING"+crlf...)
}

func (c *Codec) Decode(buf []byte) codec.Result {
	i := bytes.Index(buf, []byte(crlf))
	if i < 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	body := buf[:i]
	if bytes.Equal(body, []byte("pong")) || bytes.Equal(body, []byte("PONG")) {
		return codec.Result{Status: codec.Ok, Consumed: i + len(crlf)}
	}

	return codec.Result{Status: codec.Unknown, Consumed: i + len(crlf)}
}
