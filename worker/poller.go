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

// Package worker implements the single-threaded reactor: a connect
// queue, a readiness poller, and a session slab driven through a
// fixed-order four-phase loop.
package worker

import (
	"time"

	"github.com/nabbar/rpcperf/session"
)

// Event reports one file descriptor's readiness after a poller Wait
// call returns.
type Event struct {
	Token     int
	Readable  bool
	Writable  bool
	Error     bool
}

// Poller is the minimal readiness-notification contract the reactor
// needs; poller_linux.go backs it with epoll, poller_other.go falls
// back to the portable poll(2) syscall for non-Linux builds.
type Poller interface {
	Add(token, fd int, interest session.Interest) error
	Modify(token, fd int, interest session.Interest) error
	Remove(fd int) error
	Wait(timeout time.Duration) ([]Event, error)
	Close() error
}
