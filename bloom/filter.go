// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bloom implements the per-peer transaction-relevance bloom
// filter, a BIP37 membership test serviced by the filterload, filteradd
// and filterclear message handlers.
package bloom

import (
	"math"
	"sync"

	"github.com/btcrelay/peerd/wire"
)

const ln2Squared = math.Ln2 * math.Ln2

// seedMultiplier is the per-hash-function seed multiplier defined by
// BIP37's murmur3 construction.
const seedMultiplier = 0xfba4c795

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// Filter wraps a wire.MsgFilterLoad payload with the murmur3-based
// membership test and the concurrency-safe extend/clear operations the
// dispatcher needs.
type Filter struct {
	mtx    sync.Mutex
	filter []byte
	funcs  uint32
	tweak  uint32
	flags  wire.BloomUpdateType
}

// NewFilter creates a new bloom filter sized for the given number of
// elements and false-positive rate, matching the BIP37 sizing formula.
func NewFilter(elements, tweak uint32, fprate float64, flags wire.BloomUpdateType) *Filter {
	if fprate > 1.0 {
		fprate = 1.0
	}
	if fprate < 1e-9 {
		fprate = 1e-9
	}

	dataLen := uint32(-1 * float64(elements) * math.Log(fprate) / ln2Squared)
	dataLen = minUint32(dataLen, wire.MaxFilterLoadFilterSize*8) / 8
	if dataLen == 0 {
		dataLen = 1
	}

	funcs := uint32(float64(dataLen*8) / float64(elements) * math.Ln2)
	funcs = minUint32(funcs, wire.MaxFilterLoadHashFuncs)
	if funcs == 0 {
		funcs = 1
	}

	return &Filter{
		filter: make([]byte, dataLen),
		funcs:  funcs,
		tweak:  tweak,
		flags:  flags,
	}
}

// LoadFilter builds a new filter from a decoded filterload message.
// Size and hash-function count are already bounded by the wire decoder;
// this just copies the validated payload.
func LoadFilter(msg *wire.MsgFilterLoad) (*Filter, error) {
	return &Filter{
		filter: append([]byte(nil), msg.Filter...),
		funcs:  msg.HashFuncs,
		tweak:  msg.Tweak,
		flags:  msg.Flags,
	}, nil
}

// IsLoaded returns whether the filter currently holds any data.
func (f *Filter) IsLoaded() bool {
	if f == nil {
		return false
	}
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.filter) != 0
}

// Matches returns whether data matches the filter.
func (f *Filter) Matches(data []byte) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.matches(data)
}

func (f *Filter) matches(data []byte) bool {
	if len(f.filter) == 0 {
		return false
	}
	for i := uint32(0); i < f.funcs; i++ {
		idx := f.hash(i, data) % uint32(len(f.filter)*8)
		if f.filter[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// Add inserts data into the filter.
func (f *Filter) Add(data []byte) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if len(f.filter) == 0 {
		return
	}
	for i := uint32(0); i < f.funcs; i++ {
		idx := f.hash(i, data) % uint32(len(f.filter)*8)
		f.filter[idx/8] |= 1 << (idx % 8)
	}
}

// Clear empties the filter.
func (f *Filter) Clear() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.filter = nil
}

// UpdateType returns the configured match-update behavior.
func (f *Filter) UpdateType() wire.BloomUpdateType {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.flags
}

func (f *Filter) hash(hashNum uint32, data []byte) uint32 {
	return murmur3(hashNum*seedMultiplier+f.tweak, data)
}
