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

// Package echo implements a self-checking protocol: the client sends a
// random payload with its ISO-HDLC CRC-32 appended, and verifies the
// server echoed it back uncorrupted.
package echo

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sync/atomic"

	"github.com/nabbar/rpcperf/codec"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/valyala/fastrand"
)

const (
	crlf     = "\r\n"
	crcLen   = 4
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Codec implements codec.Codec for the echo+CRC protocol.
type Codec struct {
	length     uint32
	corruption atomic.Uint64
}

// New returns an echo Codec generating payloads of the given length.
func New(length uint32) *Codec {
	return &Codec{length: length}
}

// Corruption returns the count of CRC mismatches observed since
// construction, exposed by the metrics registry.
func (c *Codec) Corruption() uint64 {
	return c.corruption.Load()
}

func (c *Codec) Encode(out []byte, _ keyspace.Request, rng *fastrand.RNG) []byte {
	start := len(out)
	out = append(out, make([]byte, c.length)...)
	for i := uint32(0); i < c.length; i++ {
		out[start+int(i)] = alphabet[rng.Uint32n(uint32(len(alphabet)))]
	}

	sum := crc32.ChecksumIEEE(out[start:])
	var crc [crcLen]byte
	binary.BigEndian.PutUint32(crc[:], sum)

	out = append(out, crc[:]...)
	out = append(out, crlf...)
	return out
}

func (c *Codec) Decode(buf []byte) codec.Result {
	i := bytes.Index(buf, []byte(crlf))
	if i < 0 {
		return codec.Result{Status: codec.Incomplete}
	}

	if i < crcLen+1 {
		return codec.Result{Status: codec.Error, Consumed: i + len(crlf)}
	}

	payload := buf[:i-crcLen]
	trailer := buf[i-crcLen : i]

	want := binary.BigEndian.Uint32(trailer)
	got := crc32.ChecksumIEEE(payload)

	if want != got {
		c.corruption.Add(1)
		return codec.Result{Status: codec.Error, Consumed: i + len(crlf)}
	}

	return codec.Result{Status: codec.Ok, Consumed: i + len(crlf)}
}
