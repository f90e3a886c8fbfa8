// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"testing"

	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

func TestFilterAddMatches(t *testing.T) {
	f := NewFilter(10, 0, 0.0001, wire.BloomUpdateAll)
	data := []byte("a relevant output script")

	if f.Matches(data) {
		t.Fatalf("empty filter should not match anything added")
	}
	f.Add(data)
	if !f.Matches(data) {
		t.Fatalf("filter should match data that was added")
	}
	if f.Matches([]byte("something else entirely")) {
		t.Fatalf("filter matched data that was never added (acceptable only probabilistically, not for this fixed input)")
	}
}

func TestFilterClear(t *testing.T) {
	f := NewFilter(10, 0, 0.0001, wire.BloomUpdateAll)
	f.Add([]byte("foo"))
	if !f.Matches([]byte("foo")) {
		t.Fatalf("expected match before clear")
	}
	f.Clear()
	if f.Matches([]byte("foo")) {
		t.Fatalf("expected no match after clear")
	}
	if f.IsLoaded() {
		t.Fatalf("cleared filter should report not loaded")
	}
}

func TestLoadFilterFromMessage(t *testing.T) {
	msg := &wire.MsgFilterLoad{
		Filter:    make([]byte, 8),
		HashFuncs: 3,
		Tweak:     7,
		Flags:     wire.BloomUpdateP2PubkeyOnly,
	}
	f, err := LoadFilter(msg)
	if err != nil {
		t.Fatalf("LoadFilter: %v", err)
	}
	if !f.IsLoaded() {
		t.Fatalf("expected loaded filter")
	}
	if f.UpdateType() != wire.BloomUpdateP2PubkeyOnly {
		t.Fatalf("update type not preserved")
	}
}

func TestNewMerkleBlockMatchesTxHash(t *testing.T) {
	tx1 := wire.NewMsgTx()
	tx1.TxOut = []*wire.TxOut{{Value: 1, PkScript: []byte("target")}}
	tx2 := wire.NewMsgTx()
	tx2.TxOut = []*wire.TxOut{{Value: 2, PkScript: []byte("unrelated")}}

	block := wire.NewMsgBlock(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, 0))
	block.AddTransaction(tx1)
	block.AddTransaction(tx2)

	f := NewFilter(10, 0, 0.0001, wire.BloomUpdateAll)
	f.Add([]byte("target"))

	mb, matched := NewMerkleBlock(block, f)
	if len(matched) != 1 {
		t.Fatalf("expected 1 matched tx, got %d", len(matched))
	}
	if matched[0] != tx1 {
		t.Fatalf("expected tx1 to match")
	}
	if mb.Transactions != 2 {
		t.Fatalf("expected transaction count 2, got %d", mb.Transactions)
	}
	if len(mb.Hashes) == 0 {
		t.Fatalf("expected at least one hash in partial merkle tree")
	}
}

func TestNewMerkleBlockNoFilter(t *testing.T) {
	block := wire.NewMsgBlock(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, 0))
	block.AddTransaction(wire.NewMsgTx())

	_, matched := NewMerkleBlock(block, nil)
	if len(matched) != 0 {
		t.Fatalf("expected no matches with a nil filter")
	}
}
