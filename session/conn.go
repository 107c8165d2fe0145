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

package session

import (
	"errors"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by fd-level reads and writes when the
// kernel has no data or buffer space available right now; the reactor
// treats it as "reregister and wait for the next readiness event", not
// as a connection failure.
var ErrWouldBlock = errors.New("session: operation would block")

// rawSocket owns one non-blocking TCP file descriptor, used directly by
// Plain sessions and wrapped by fdConn for the TLS handshake.
type rawSocket struct {
	fd int
}

// dial creates a non-blocking socket and starts an asynchronous connect
// to addr, optionally setting TCP_NODELAY. The connect is typically
// still in progress when dial returns; completion is observed as a
// writable readiness event on fd.
func dial(addr string, nodelay bool) (*rawSocket, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	} else {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if nodelay {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}

	var connErr error
	if domain == unix.AF_INET6 {
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		if ip6 := tcpAddr.IP.To16(); ip6 != nil {
			copy(sa6.Addr[:], ip6)
		}
		connErr = unix.Connect(fd, sa6)
	} else {
		connErr = unix.Connect(fd, sa)
	}

	if connErr != nil && connErr != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, connErr
	}

	return &rawSocket{fd: fd}, nil
}

func (s *rawSocket) Fd() int {
	return s.fd
}

// Read performs one non-blocking read into p.
func (s *rawSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Write performs one non-blocking write of p.
func (s *rawSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// ConnectError returns the pending error on a socket completing an
// asynchronous connect, as read via SO_ERROR.
func (s *rawSocket) ConnectError() error {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return syscall.Errno(errno)
	}
	return nil
}

func (s *rawSocket) Close() error {
	return unix.Close(s.fd)
}

// fdConn adapts a rawSocket to net.Conn so that crypto/tls can drive a
// handshake over it; EAGAIN is surfaced as a net.Error whose Timeout()
// is true, which is how the reactor recognises "stay in Handshaking"
// versus a genuine failure.
type fdConn struct {
	raw        *rawSocket
	localAddr  net.Addr
	remoteAddr net.Addr
}

type wouldBlockNetError struct{}

func (wouldBlockNetError) Error() string   { return "session: would block" }
func (wouldBlockNetError) Timeout() bool   { return true }
func (wouldBlockNetError) Temporary() bool { return true }

// IsWouldBlock reports whether err represents a non-blocking operation
// that has no data or buffer space available right now, whether it
// came directly off a raw fd (ErrWouldBlock) or through crypto/tls,
// which returns whatever its underlying net.Conn reported without
// rewrapping it.
func IsWouldBlock(err error) bool {
	if err == ErrWouldBlock {
		return true
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok {
		return ne.Timeout()
	}
	return false
}

func (c *fdConn) Read(p []byte) (int, error) {
	n, err := c.raw.Read(p)
	if err == ErrWouldBlock {
		return 0, wouldBlockNetError{}
	}
	return n, err
}

func (c *fdConn) Write(p []byte) (int, error) {
	n, err := c.raw.Write(p)
	if err == ErrWouldBlock {
		return 0, wouldBlockNetError{}
	}
	return n, err
}

func (c *fdConn) Close() error                       { return c.raw.Close() }
func (c *fdConn) LocalAddr() net.Addr                { return c.localAddr }
func (c *fdConn) RemoteAddr() net.Addr               { return c.remoteAddr }
func (c *fdConn) SetDeadline(_ time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(_ time.Time) error   { return nil }
func (c *fdConn) SetWriteDeadline(_ time.Time) error  { return nil }
