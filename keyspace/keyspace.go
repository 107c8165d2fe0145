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

// Package keyspace turns a declarative keyspace configuration into
// concrete requests via weighted pseudo-random draws, using a
// per-worker fastrand generator seeded from OS entropy.
package keyspace

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	liberr "github.com/nabbar/rpcperf/errors"
	"github.com/valyala/fastrand"
)

// Verb is one wire-level command the codec layer knows how to encode.
type Verb uint8

const (
	Ping Verb = iota
	Echo
	Get
	Set
	Delete
	Hget
	Hset
	Hsetnx
	Hdel
	Rpush
	Rpushx
	Count
	Lrange
	Ltrim
)

func (v Verb) String() string {
	switch v {
	case Ping:
		return "ping"
	case Echo:
		return "echo"
	case Get:
		return "get"
	case Set:
		return "set"
	case Delete:
		return "delete"
	case Hget:
		return "hget"
	case Hset:
		return "hset"
	case Hsetnx:
		return "hsetnx"
	case Hdel:
		return "hdel"
	case Rpush:
		return "rpush"
	case Rpushx:
		return "rpushx"
	case Count:
		return "count"
	case Lrange:
		return "lrange"
	case Ltrim:
		return "ltrim"
	default:
		return "unknown"
	}
}

// ParseVerb accepts the configuration spelling of a command verb.
func ParseVerb(s string) (Verb, liberr.Error) {
	switch s {
	case "ping":
		return Ping, nil
	case "echo":
		return Echo, nil
	case "get":
		return Get, nil
	case "set":
		return Set, nil
	case "delete":
		return Delete, nil
	case "hget":
		return Hget, nil
	case "hset":
		return Hset, nil
	case "hsetnx":
		return Hsetnx, nil
	case "hdel":
		return Hdel, nil
	case "rpush":
		return Rpush, nil
	case "rpushx":
		return Rpushx, nil
	case "count":
		return Count, nil
	case "lrange":
		return Lrange, nil
	case "ltrim":
		return Ltrim, nil
	default:
		return Ping, liberr.New(uint16(ErrorUnknownVerb), fmt.Sprintf("unknown command verb %q", s))
	}
}

// RequiresInnerKeys reports whether a verb addresses a field within a
// composite value (hash or list operations).
func (v Verb) RequiresInnerKeys() bool {
	switch v {
	case Hget, Hset, Hsetnx, Hdel:
		return true
	default:
		return false
	}
}

// RequiresValue reports whether a verb carries a payload.
func (v Verb) RequiresValue() bool {
	switch v {
	case Set, Hset, Hsetnx, Rpush, Rpushx:
		return true
	default:
		return false
	}
}

// KeyType selects how a key's bytes are generated.
type KeyType uint8

const (
	Alphanumeric KeyType = iota
	U32
)

// ParseKeyType accepts "alphanumeric" or "u32".
func ParseKeyType(s string) (KeyType, liberr.Error) {
	switch s {
	case "", "alphanumeric":
		return Alphanumeric, nil
	case "u32":
		return U32, nil
	default:
		return Alphanumeric, liberr.New(uint16(ErrorUnknownKeyType), "unknown keyspace key_type: "+s)
	}
}

const alphanumericCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Field describes one weighted length class in an inner-key or value
// distribution.
type Field struct {
	Length uint32
	Weight uint32
}

// Command is one weighted verb entry in a keyspace's command list.
type Command struct {
	Verb   Verb
	Weight uint32
}

// Keyspace is one weighted partition of the overall key space: its own
// key shape, TTL, batch size, and command/inner-key/value distributions.
type Keyspace struct {
	Length    uint32
	Weight    uint32
	KeyType   KeyType
	TTL       uint32
	BatchSize uint32

	Commands  []Command
	InnerKeys []Field
	Values    []Field

	commandDist  *weighted[Verb]
	innerKeyDist *weighted[Field]
	valueDist    *weighted[Field]
}

// Request is one generated operation, ready for a codec to encode.
type Request struct {
	Verb      Verb
	Key       []byte
	InnerKeys [][]byte
	Values    [][]byte
	TTL       uint32
	BatchSize uint32
}

// Generator draws Requests from a weighted index over its keyspaces.
type Generator struct {
	keyspaces []*Keyspace
	dist      *weighted[*Keyspace]
}

// New validates and compiles a Generator from the given keyspaces,
// building the discrete distributions once so that the hot path never
// allocates.
func New(keyspaces []*Keyspace) (*Generator, liberr.Error) {
	if len(keyspaces) == 0 {
		return nil, liberr.New(uint16(ErrorEmptyKeyspaces), "generator built without any keyspace")
	}

	entries := make([]weightedEntry[*Keyspace], 0, len(keyspaces))

	for _, ks := range keyspaces {
		if len(ks.Commands) == 0 {
			return nil, liberr.New(uint16(ErrorEmptyCommands), "keyspace command list must not be empty")
		}

		cmdEntries := make([]weightedEntry[Verb], 0, len(ks.Commands))
		needsValue := false
		needsInner := false

		for _, c := range ks.Commands {
			cmdEntries = append(cmdEntries, weightedEntry[Verb]{value: c.Verb, weight: c.Weight})
			needsValue = needsValue || c.Verb.RequiresValue()
			needsInner = needsInner || c.Verb.RequiresInnerKeys()
		}
		ks.commandDist = newWeighted(cmdEntries)

		if needsValue && len(ks.Values) > 0 {
			valEntries := make([]weightedEntry[Field], 0, len(ks.Values))
			for _, f := range ks.Values {
				valEntries = append(valEntries, weightedEntry[Field]{value: f, weight: f.Weight})
			}
			ks.valueDist = newWeighted(valEntries)
		} else if needsValue {
			return nil, liberr.New(uint16(ErrorEmptyValues), "a command requiring values was declared without a value distribution")
		}

		if needsInner && len(ks.InnerKeys) > 0 {
			innerEntries := make([]weightedEntry[Field], 0, len(ks.InnerKeys))
			for _, f := range ks.InnerKeys {
				innerEntries = append(innerEntries, weightedEntry[Field]{value: f, weight: f.Weight})
			}
			ks.innerKeyDist = newWeighted(innerEntries)
		}

		entries = append(entries, weightedEntry[*Keyspace]{value: ks, weight: ks.Weight})
	}

	return &Generator{keyspaces: keyspaces, dist: newWeighted(entries)}, nil
}

// Generate draws one Request following the five-step keyspace
// generation sequence: pick a keyspace, pick a verb, build a key, and
// (when the verb needs them) build the inner keys and values.
func (g *Generator) Generate(rng *fastrand.RNG) Request {
	ks := g.dist.draw(rng)
	verb := ks.commandDist.draw(rng)

	req := Request{
		Verb:      verb,
		Key:       genKey(rng, ks.Length, ks.KeyType),
		TTL:       ks.TTL,
		BatchSize: ks.BatchSize,
	}

	if verb.RequiresInnerKeys() && ks.innerKeyDist != nil {
		n := ks.BatchSize
		if n == 0 {
			n = 1
		}
		req.InnerKeys = make([][]byte, n)
		for i := uint32(0); i < n; i++ {
			f := ks.innerKeyDist.draw(rng)
			req.InnerKeys[i] = genAlphanumeric(rng, f.Length)
		}
	}

	if verb.RequiresValue() && ks.valueDist != nil {
		n := ks.BatchSize
		if n == 0 {
			n = 1
		}
		req.Values = make([][]byte, n)
		for i := uint32(0); i < n; i++ {
			f := ks.valueDist.draw(rng)
			req.Values[i] = genAlphanumeric(rng, f.Length)
		}
	}

	return req
}

func genKey(rng *fastrand.RNG, length uint32, kt KeyType) []byte {
	switch kt {
	case U32:
		v := rng.Uint32()
		s := strconv.FormatUint(uint64(v), 10)
		for len(s) < 10 {
			s = "0" + s
		}
		return []byte(s)
	default:
		return genAlphanumeric(rng, length)
	}
}

// NewRNG returns a fastrand generator seeded from OS entropy, called once
// per worker at construction so that concurrent workers (and repeated
// runs) draw independent key/verb/value sequences instead of all
// starting from the same internal state.
func NewRNG() *fastrand.RNG {
	rng := &fastrand.RNG{}

	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		rng.Seed(time.Now().UnixNano())
		return rng
	}

	rng.Seed(int64(binary.LittleEndian.Uint64(seed[:])))
	return rng
}

func genAlphanumeric(rng *fastrand.RNG, length uint32) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i] = alphanumericCharset[rng.Uint32n(uint32(len(alphanumericCharset)))]
	}
	return out
}
