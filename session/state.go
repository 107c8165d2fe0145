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

// State is one point in a session's lifecycle, from the moment its
// socket is created until it is torn down and its address is re-queued
// for reconnect.
type State uint8

const (
	Connecting State = iota
	Handshaking
	Connected
	Writing
	Reading
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Writing:
		return "writing"
	case Reading:
		return "reading"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Interest is the readiness bitmask the reactor should register for a
// session in a given state.
type Interest uint8

const (
	InterestNone  Interest = 0
	InterestRead  Interest = 1 << 0
	InterestWrite Interest = 1 << 1
)

// Interest returns the readiness set the reactor must advertise for the
// session's current state.
func (s State) Interest() Interest {
	switch s {
	case Connecting:
		return InterestWrite
	case Handshaking:
		return InterestRead | InterestWrite
	case Connected:
		return InterestRead
	case Writing:
		return InterestRead | InterestWrite
	case Reading:
		return InterestRead
	default:
		return InterestNone
	}
}

// Stream tags which transport a session is using.
type Stream uint8

const (
	Plain Stream = iota
	Tls
)
