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

// Package session owns one TCP or TLS stream plus its read/write byte
// buffers and state enum, and performs the non-blocking I/O steps the
// worker reactor drives on readiness events.
package session

import (
	"crypto/tls"
	"time"

	liberr "github.com/nabbar/rpcperf/errors"
)

const (
	scratchSize      = 1024
	minBufferCapacity = 4096
)

// Session is one peer connection owned by exactly one worker reactor.
type Session struct {
	Token       int
	Peer        string
	Stream      Stream
	State       State
	Connected   bool
	Timestamp   time.Time

	raw     *rawSocket
	conn    *fdConn
	tlsConn *tls.Conn

	readBuf  []byte
	writeBuf []byte
	scratch  [scratchSize]byte

	RecvBytes uint64
	SendBytes uint64
}

// Connect opens a non-blocking TCP stream to peer and optionally starts
// a TLS handshake, returning a Session in Connecting (plain) or
// Handshaking (tls) state.
func Connect(token int, peer string, nodelay bool, tlsCfg *tls.Config) (*Session, liberr.Error) {
	raw, err := dial(peer, nodelay)
	if err != nil {
		return nil, liberr.New(uint16(ErrorSocketConnect), "cannot start connect on socket", err)
	}

	s := &Session{
		Token:     token,
		Peer:      peer,
		raw:       raw,
		readBuf:   make([]byte, 0, minBufferCapacity),
		writeBuf:  make([]byte, 0, minBufferCapacity),
		Timestamp: time.Now(),
	}

	if tlsCfg != nil {
		s.Stream = Tls
		s.State = Handshaking
		s.conn = &fdConn{raw: raw}
		s.tlsConn = tls.Client(s.conn, tlsCfg)
	} else {
		s.Stream = Plain
		s.State = Connecting
	}

	return s, nil
}

// Fd returns the underlying file descriptor, used by the reactor to
// register and reregister readiness interest.
func (s *Session) Fd() int {
	return s.raw.Fd()
}

// MarkWritableConnected transitions a Plain session (or a Tls session
// whose handshake just completed) into Connected. Timestamp is left
// unchanged, so it still holds the instant the connect started.
func (s *Session) MarkWritableConnected() {
	s.Connected = true
	s.State = Connected
}

// DoHandshake advances a TLS handshake by one step. ErrWouldBlock means
// stay in Handshaking and wait for the next readiness event.
func (s *Session) DoHandshake() error {
	if err := s.tlsConn.Handshake(); err != nil {
		if IsWouldBlock(err) {
			return ErrWouldBlock
		}
		return err
	}

	s.MarkWritableConnected()
	return nil
}

// DidResume reports whether the TLS session used an abbreviated
// handshake via session resumption.
func (s *Session) DidResume() bool {
	if s.tlsConn == nil {
		return false
	}
	return s.tlsConn.ConnectionState().DidResume
}

// FillFromSocket repeatedly reads into the 1024-byte scratch buffer and
// appends to the read buffer until the socket returns WouldBlock, a
// short read, or EOF.
func (s *Session) FillFromSocket() (int, error) {
	total := 0

	for {
		n, err := s.read(s.scratch[:])
		if n > 0 {
			s.readBuf = append(s.readBuf, s.scratch[:n]...)
			s.RecvBytes += uint64(n)
			total += n
		}

		if err != nil {
			if IsWouldBlock(err) {
				if total > 0 {
					return total, nil
				}
				return 0, ErrWouldBlock
			}
			return total, err
		}

		if n == 0 {
			return total, nil
		}

		if n < len(s.scratch) {
			return total, nil
		}
	}
}

func (s *Session) read(p []byte) (int, error) {
	if s.Stream == Tls {
		return s.tlsConn.Read(p)
	}
	return s.raw.Read(p)
}

func (s *Session) write(p []byte) (int, error) {
	if s.Stream == Tls {
		return s.tlsConn.Write(p)
	}
	return s.raw.Write(p)
}

// ReadBuffer exposes the accumulated, not-yet-consumed response bytes
// to the codec's Decode call.
func (s *Session) ReadBuffer() []byte {
	return s.readBuf
}

// Consume drops the first n bytes of the read buffer after a
// successful decode.
func (s *Session) Consume(n int) {
	s.readBuf = append(s.readBuf[:0], s.readBuf[n:]...)
}

// QueueWrite appends a framed request to the write buffer and marks the
// session Writing.
func (s *Session) QueueWrite(frame []byte) {
	s.writeBuf = append(s.writeBuf, frame...)
	s.State = Writing
	s.Timestamp = time.Now()
}

// HasPendingWrite reports whether the write buffer still holds
// unflushed bytes.
func (s *Session) HasPendingWrite() bool {
	return len(s.writeBuf) > 0
}

// FlushToSocket writes as much of the write buffer as the kernel
// accepts, advancing the buffer start.
func (s *Session) FlushToSocket() (int, error) {
	if len(s.writeBuf) == 0 {
		return 0, nil
	}

	n, err := s.write(s.writeBuf)
	if n > 0 {
		s.writeBuf = append(s.writeBuf[:0], s.writeBuf[n:]...)
		s.SendBytes += uint64(n)
	}

	if err != nil {
		if IsWouldBlock(err) {
			return n, ErrWouldBlock
		}
		return n, err
	}

	if len(s.writeBuf) == 0 {
		s.State = Reading
	}

	return n, nil
}

// Close performs a graceful shutdown and clears buffers; OPEN gauge
// bookkeeping is the worker's responsibility.
func (s *Session) Close() error {
	s.State = Closed
	s.Connected = false
	s.readBuf = s.readBuf[:0]
	s.writeBuf = s.writeBuf[:0]

	if s.Stream == Tls && s.tlsConn != nil {
		_ = s.tlsConn.CloseWrite()
	}

	return s.raw.Close()
}
