// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockindex

import (
	"testing"

	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

func chainHeader(t *testing.T, prev chainhash.Hash, nonce uint32) *wire.BlockHeader {
	t.Helper()
	return wire.NewBlockHeader(1, &prev, &chainhash.Hash{}, 0x1d00ffff, nonce)
}

func buildChain(t *testing.T, idx *Index, n int) []NodeIndex {
	t.Helper()
	genesis := chainHeader(t, chainhash.Hash{}, 0)
	nodes := []NodeIndex{idx.AddGenesis(genesis)}
	prevHash := genesis.BlockHash()
	for i := 1; i < n; i++ {
		h := chainHeader(t, prevHash, uint32(i))
		ni, ok := idx.AddChild(nodes[i-1], h)
		if !ok {
			t.Fatalf("AddChild failed at height %d", i)
		}
		nodes = append(nodes, ni)
		prevHash = h.BlockHash()
	}
	return nodes
}

func TestAncestorWalksByHeight(t *testing.T) {
	idx := New()
	nodes := buildChain(t, idx, 10)

	anc, ok := idx.Ancestor(nodes[9], 3)
	if !ok {
		t.Fatalf("expected ancestor at height 3")
	}
	if anc != nodes[3] {
		t.Fatalf("ancestor mismatch: got %v want %v", anc, nodes[3])
	}

	if _, ok := idx.Ancestor(nodes[9], 20); ok {
		t.Fatalf("expected no ancestor above the node's own height")
	}
}

func TestHeightAndWorkIncreaseMonotonically(t *testing.T) {
	idx := New()
	nodes := buildChain(t, idx, 5)

	for i := 1; i < len(nodes); i++ {
		if idx.Height(nodes[i]) != idx.Height(nodes[i-1])+1 {
			t.Fatalf("expected height to increase by one at step %d", i)
		}
		if idx.Work(nodes[i]).Cmp(idx.Work(nodes[i-1])) <= 0 {
			t.Fatalf("expected cumulative work to strictly increase at step %d", i)
		}
	}
}

func TestTipTracksMostWork(t *testing.T) {
	idx := New()
	nodes := buildChain(t, idx, 5)

	tip, ok := idx.Tip()
	if !ok || tip != nodes[len(nodes)-1] {
		t.Fatalf("expected tip to be the chain head")
	}
}

func TestLastCommonAncestorOnFork(t *testing.T) {
	idx := New()
	nodes := buildChain(t, idx, 5)

	// Fork off node 2 with a different nonce sequence.
	forkPrevHeader := idx.Header(nodes[2])
	forkPrev := forkPrevHeader.BlockHash()
	forkHeader := chainHeader(t, forkPrev, 9001)
	forkTip, ok := idx.AddChild(nodes[2], forkHeader)
	if !ok {
		t.Fatalf("AddChild for fork failed")
	}

	lca, ok := idx.LastCommonAncestor(nodes[4], forkTip)
	if !ok || lca != nodes[2] {
		t.Fatalf("expected last common ancestor to be node 2, got %v ok=%v", lca, ok)
	}
}

func TestLookupByHash(t *testing.T) {
	idx := New()
	nodes := buildChain(t, idx, 3)

	node1Header := idx.Header(nodes[1])
	hash := node1Header.BlockHash()
	got, ok := idx.Lookup(&hash)
	if !ok || got != nodes[1] {
		t.Fatalf("Lookup failed to find known header")
	}
}

func TestStatusFlags(t *testing.T) {
	idx := New()
	nodes := buildChain(t, idx, 1)

	idx.SetStatus(nodes[0], StatusHeaderValid)
	idx.SetStatus(nodes[0], StatusHaveData)

	got := idx.Status(nodes[0])
	if got&StatusHeaderValid == 0 || got&StatusHaveData == 0 {
		t.Fatalf("expected both status flags set, got %v", got)
	}
	if got&StatusInvalid != 0 {
		t.Fatalf("did not expect StatusInvalid to be set")
	}
}

func TestAddChildRejectsUnknownParent(t *testing.T) {
	idx := New()
	buildChain(t, idx, 1)

	bogus := NodeIndex(999)
	if _, ok := idx.AddChild(bogus, chainHeader(t, chainhash.Hash{}, 1)); ok {
		t.Fatalf("expected AddChild to reject an out-of-range parent")
	}
}
