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

// Package codec declares the shared encode/decode contract implemented
// by every wire protocol this generator speaks, plus the classification
// a decode pass reports back to the worker reactor.
package codec

import (
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/valyala/fastrand"
)

// Status classifies the outcome of a single Decode call.
type Status uint8

const (
	// Ok means one complete response frame was consumed from the buffer.
	Ok Status = iota
	// Incomplete means the buffer holds a partial frame; leave it
	// untouched and wait for more bytes.
	Incomplete
	// Error means a protocol violation was detected; the caller
	// disconnects.
	Error
	// Unknown means the frame parsed but did not match any known
	// response shape; the caller disconnects.
	Unknown
)

// Result is the outcome of a Decode call: its Status, how many bytes of
// the input buffer were consumed on Ok, and how many cache hits the
// frame carried (for the response_hit metric; a batched
// multi-get response counts one hit per matched key, not one per
// frame).
type Result struct {
	Status   Status
	Consumed int
	Hits     int
}

// Codec turns Requests into wire bytes and wire bytes back into
// Results. Implementations keep no state across calls beyond what the
// caller's buffers hold: one call encodes or decodes exactly one frame.
type Codec interface {
	// Encode appends exactly one framed request to out, returning the
	// extended slice.
	Encode(out []byte, req keyspace.Request, rng *fastrand.RNG) []byte

	// Decode inspects buf for one complete response frame starting at
	// offset zero and reports what it found.
	Decode(buf []byte) Result
}

// Name identifies a codec for configuration and metric labelling.
type Name string

const (
	NameMemcache    Name = "memcache"
	NameRedisRESP   Name = "redis_resp"
	NameRedisInline Name = "redis_inline"
	NameThrift      Name = "thrift_cache"
	NamePing        Name = "ping"
	NameEcho        Name = "echo"
)
