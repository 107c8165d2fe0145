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

// Package thrift implements the framed Thrift binary protocol spoken by
// the cache service: a four-byte big-endian length prefix followed by a
// single-method call with one request struct argument.
package thrift

import (
	"encoding/binary"
	"math"

	"github.com/nabbar/rpcperf/codec"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/valyala/fastrand"
)

const (
	tstop   = 0x00
	tstring = 0x0b
	ti32    = 0x08
	tstruct = 0x0c
	tlist   = 0x0f

	messageTypeCall = 0x01
)

// Codec implements codec.Codec for the framed Thrift binary protocol.
type Codec struct {
	seq int32
}

// New returns a ready-to-use thrift Codec.
func New() *Codec {
	return &Codec{}
}

func methodName(v keyspace.Verb) string {
	switch v {
	case keyspace.Get:
		return "get"
	case keyspace.Set:
		return "set"
	case keyspace.Delete:
		return "delete"
	case keyspace.Count:
		return "count"
	default:
		return "scan"
	}
}

func (c *Codec) Encode(out []byte, req keyspace.Request, _ *fastrand.RNG) []byte {
	start := len(out)
	out = append(out, 0, 0, 0, 0) // frame length placeholder

	out = append(out, 0x80, 0x01, 0x00, byte(messageTypeCall))

	name := methodName(req.Verb)
	out = appendI32(out, int32(len(name)))
	out = append(out, name...)

	c.seq++
	out = appendI32(out, c.seq)

	// field 1: a list containing exactly one request struct.
	out = append(out, tlist, 0x00, 0x01)
	out = append(out, tstruct)
	out = appendI32(out, 1)

	out = appendStructField(out, 1, req.Key)
	if len(req.Values) > 0 {
		out = appendStructField(out, 2, req.Values[0])
	}
	out = append(out, tstop) // end request struct
	out = append(out, tstop) // end call args struct

	frameLen := len(out) - start - 4
	binary.BigEndian.PutUint32(out[start:start+4], uint32(frameLen))

	return out
}

func appendI32(out []byte, v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(out, b[:]...)
}

func appendStructField(out []byte, id int16, value []byte) []byte {
	out = append(out, tstring)
	out = append(out, byte(id>>8), byte(id))
	out = appendI32(out, int32(len(value)))
	return append(out, value...)
}

func (c *Codec) Decode(buf []byte) codec.Result {
	if len(buf) < 4 {
		return codec.Result{Status: codec.Incomplete}
	}

	length := binary.BigEndian.Uint32(buf[:4])

	if uint64(length) > uint64(math.MaxUint32)-4 {
		return codec.Result{Status: codec.Unknown, Consumed: 4}
	}

	total := int64(length) + 4

	switch {
	case total > int64(len(buf)):
		return codec.Result{Status: codec.Incomplete}
	case total == int64(len(buf)):
		return codec.Result{Status: codec.Ok, Consumed: int(total)}
	default:
		return codec.Result{Status: codec.Ok, Consumed: int(total)}
	}
}
