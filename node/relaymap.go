// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"github.com/decred/dcrd/lru"

	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

// RelayMap holds the bodies of recently-accepted transactions so a
// getdata(MSG_TX) from a second peer can be served without going back to
// the mempool, and so a transaction can still be served for a short
// window after it leaves the mempool (mined, or evicted). It is a
// github.com/decred/dcrd/lru.KVCache, the same bounded eviction
// structure netsync's unconnected-header cache uses, keyed here by
// transaction hash instead of a header's parent hash.
type RelayMap struct {
	cache lru.KVCache
}

// NewRelayMap returns a RelayMap holding at most limit transactions.
func NewRelayMap(limit uint) *RelayMap {
	return &RelayMap{cache: lru.NewKVCache(limit)}
}

// Store records tx under hash, for later getdata service.
func (m *RelayMap) Store(hash chainhash.Hash, tx *wire.MsgTx) {
	m.cache.Add(hash, tx)
}

// Fetch returns the transaction stored under hash, if still present.
func (m *RelayMap) Fetch(hash chainhash.Hash) (*wire.MsgTx, bool) {
	v, ok := m.cache.Lookup(hash)
	if !ok {
		return nil, false
	}
	return v.(*wire.MsgTx), true
}
