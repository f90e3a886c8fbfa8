// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"testing"

	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

func TestRelayMapStoreAndFetch(t *testing.T) {
	m := NewRelayMap(10)

	var hash chainhash.Hash
	hash[0] = 0xab
	tx := wire.NewMsgTx()
	tx.LockTime = 42

	if _, ok := m.Fetch(hash); ok {
		t.Fatal("Fetch found a transaction before it was stored")
	}

	m.Store(hash, tx)

	got, ok := m.Fetch(hash)
	if !ok {
		t.Fatal("Fetch did not find a stored transaction")
	}
	if got != tx {
		t.Error("Fetch returned a different transaction value than was stored")
	}
}

func TestRelayMapEvictsPastLimit(t *testing.T) {
	m := NewRelayMap(2)

	var h1, h2, h3 chainhash.Hash
	h1[0], h2[0], h3[0] = 1, 2, 3

	m.Store(h1, wire.NewMsgTx())
	m.Store(h2, wire.NewMsgTx())
	m.Store(h3, wire.NewMsgTx())

	if _, ok := m.Fetch(h1); ok {
		t.Error("oldest entry was not evicted once the cache exceeded its limit")
	}
	if _, ok := m.Fetch(h3); !ok {
		t.Error("most recently stored entry should still be present")
	}
}
