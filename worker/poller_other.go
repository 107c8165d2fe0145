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

//go:build !linux

package worker

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/rpcperf/session"
)

// pollPoller backs Poller on non-Linux unix targets with the portable
// poll(2) syscall; it keeps its own fd table since poll takes the full
// set on every call instead of an incremental registration like epoll.
type pollPoller struct {
	mu      sync.Mutex
	tokens  map[int]int
	interest map[int]session.Interest
}

func newPoller() (Poller, error) {
	return &pollPoller{
		tokens:   make(map[int]int),
		interest: make(map[int]session.Interest),
	}, nil
}

func (p *pollPoller) Add(token, fd int, interest session.Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[fd] = token
	p.interest[fd] = interest
	return nil
}

func (p *pollPoller) Modify(token, fd int, interest session.Interest) error {
	return p.Add(token, fd, interest)
}

func (p *pollPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, fd)
	delete(p.interest, fd)
	return nil
}

func toPollMask(interest session.Interest) int16 {
	var mask int16
	if interest&session.InterestRead != 0 {
		mask |= unix.POLLIN
	}
	if interest&session.InterestWrite != 0 {
		mask |= unix.POLLOUT
	}
	return mask
}

func (p *pollPoller) Wait(timeout time.Duration) ([]Event, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.tokens))
	order := make([]int, 0, len(p.tokens))
	for fd, interest := range p.interest {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollMask(interest)})
		order = append(order, fd)
	}
	p.mu.Unlock()

	if len(fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Event, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		token, ok := p.tokens[order[i]]
		if !ok {
			continue
		}
		out = append(out, Event{
			Token:    token,
			Readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Error:    pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0,
		})
	}
	return out, nil
}

func (p *pollPoller) Close() error {
	return nil
}
