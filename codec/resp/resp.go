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

// Package resp implements the Redis wire protocol in both its RESP
// (bulk-string array) and inline command forms, selected by Mode.
package resp

import (
	"bytes"
	"strconv"

	"github.com/nabbar/rpcperf/codec"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/valyala/fastrand"
)

// Mode selects how commands are emitted on the wire; decoding is
// identical in both modes.
type Mode uint8

const (
	Inline Mode = iota
	RESP
)

// Codec implements codec.Codec for the Redis protocol.
type Codec struct {
	mode Mode
}

// New returns a Redis Codec emitting commands in the given Mode.
func New(mode Mode) *Codec {
	return &Codec{mode: mode}
}

func verbToken(v keyspace.Verb) string {
	switch v {
	case keyspace.Get:
		return "get"
	case keyspace.Set:
		return "set"
	case keyspace.Delete:
		return "del"
	case keyspace.Hget:
		return "hget"
	case keyspace.Hset:
		return "hset"
	case keyspace.Hsetnx:
		return "hsetnx"
	case keyspace.Hdel:
		return "hdel"
	case keyspace.Rpush:
		return "rpush"
	case keyspace.Rpushx:
		return "rpushx"
	case keyspace.Count:
		return "llen"
	case keyspace.Lrange:
		return "lrange"
	case keyspace.Ltrim:
		return "ltrim"
	default:
		return "ping"
	}
}

func (c *Codec) args(req keyspace.Request) []string {
	args := []string{verbToken(req.Verb), string(req.Key)}

	switch req.Verb {
	case keyspace.Hget, keyspace.Hdel:
		for _, k := range req.InnerKeys {
			args = append(args, string(k))
		}
	case keyspace.Hset, keyspace.Hsetnx:
		for i, k := range req.InnerKeys {
			args = append(args, string(k))
			if i < len(req.Values) {
				args = append(args, string(req.Values[i]))
			}
		}
	case keyspace.Set:
		if len(req.Values) > 0 {
			args = append(args, string(req.Values[0]))
		}
		if req.TTL > 0 {
			args = append(args, "EX", strconv.FormatUint(uint64(req.TTL), 10))
		}
	case keyspace.Rpush, keyspace.Rpushx:
		for _, v := range req.Values {
			args = append(args, string(v))
		}
	}

	return args
}

func (c *Codec) Encode(out []byte, req keyspace.Request, _ *fastrand.RNG) []byte {
	args := c.args(req)

	if c.mode == Inline {
		for i, a := range args {
			if i > 0 {
				out = append(out, ' ')
			}
			out = append(out, a...)
		}
		return append(out, "\r\n"...)
	}

	out = append(out, '*')
	out = strconv.AppendInt(out, int64(len(args)), 10)
	out = append(out, "\r\n"...)

	for _, a := range args {
		out = append(out, '$')
		out = strconv.AppendInt(out, int64(len(a)), 10)
		out = append(out, "\r\n"...)
		out = append(out, a...)
		out = append(out, "\r\n"...)
	}

	return out
}

func (c *Codec) Decode(buf []byte) codec.Result {
	if len(buf) == 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	switch buf[0] {
	case '+':
		return decodeLine(buf, func(body []byte) codec.Status {
			if bytes.Equal(body, []byte("OK")) || bytes.Equal(body, []byte("PONG")) {
				return codec.Ok
			}
			return codec.Unknown
		})

	case '-':
		return decodeLine(buf, func([]byte) codec.Status { return codec.Error })

	case ':':
		return decodeLine(buf, func([]byte) codec.Status { return codec.Ok })

	case '$':
		return decodeBulk(buf)

	case '*':
		return decodeArray(buf)

	default:
		return codec.Result{Status: codec.Unknown, Consumed: len(buf)}
	}
}

func decodeLine(buf []byte, classify func([]byte) codec.Status) codec.Result {
	i := bytes.Index(buf, []byte("\r\n"))
	if i < 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	return codec.Result{Status: classify(buf[1:i]), Consumed: i + 2}
}

func decodeBulk(buf []byte) codec.Result {
	i := bytes.Index(buf, []byte("\r\n"))
	if i < 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	length, err := strconv.Atoi(string(buf[1:i]))
	if err != nil {
		return codec.Result{Status: codec.Error, Consumed: i + 2}
	}

	if length < 0 {
		return codec.Result{Status: codec.Ok, Consumed: i + 2}
	}

	frameLen := (i + 2) + length + 2

	if len(buf) < frameLen {
		return codec.Result{Status: codec.Incomplete}
	}

	if !bytes.HasSuffix(buf[:frameLen], []byte("\r\n")) {
		return codec.Result{Status: codec.Error, Consumed: frameLen}
	}

	return codec.Result{Status: codec.Ok, Consumed: frameLen, Hits: 1}
}

func decodeArray(buf []byte) codec.Result {
	i := bytes.Index(buf, []byte("\r\n"))
	if i < 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	n, err := strconv.Atoi(string(buf[1:i]))
	if err != nil {
		return codec.Result{Status: codec.Error, Consumed: i + 2}
	}

	if n < 0 {
		return codec.Result{Status: codec.Ok, Consumed: i + 2}
	}

	return codec.Result{Status: codec.Unknown, Consumed: i + 2}
}
