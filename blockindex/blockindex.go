// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockindex implements the header tree the peer and netsync
// packages consult to know what chain state a remote peer is at and
// what to request next. It is an arena: nodes live in a slice and
// reference their parent by index rather than by pointer, so the tree
// has a single owner and no cyclic pointer graph to reason about.
package blockindex

import (
	"math/big"
	"sync"

	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

// StatusFlags records what has been established about a header beyond
// its mere existence in the tree.
type StatusFlags uint8

const (
	// StatusHeaderValid means the header itself passed context-free
	// checks (proof of work, timestamp, version).
	StatusHeaderValid StatusFlags = 1 << iota

	// StatusHaveData means the full block body has been downloaded and
	// handed to the validator.
	StatusHaveData

	// StatusExcessive marks a block whose size exceeded the configured
	// excessive-block threshold; it is tracked but not built on by
	// default mining/relay policy.
	StatusExcessive

	// StatusInvalid means the validator rejected this block or an
	// ancestor of it.
	StatusInvalid
)

// noIndex is the sentinel parent index for the tree's root(s) — a
// header whose previous block has not been seen.
const noIndex = -1

// node is one entry in the arena. Nodes are never moved or reused once
// appended, so a nodeIndex handed out to a caller stays valid for the
// lifetime of the Index.
type node struct {
	hash   chainhash.Hash
	header wire.BlockHeader
	parent int
	height int32
	work   *big.Int // cumulative chain work up to and including this node
	status StatusFlags
}

// NodeIndex identifies a node in the arena. Indices are assigned in
// insertion order starting at zero, so the zero value names the first
// header inserted; callers get a NodeIndex only from Index methods.
type NodeIndex int

// Index is a concurrency-safe arena of block headers, organized as a
// tree rooted at whichever headers were accepted with no known parent
// (normally just the genesis block).
type Index struct {
	mtx    sync.RWMutex
	nodes  []node
	byHash map[chainhash.Hash]int
	tips   map[int]struct{} // indices with no known child, for tip selection
}

// New returns an empty header index.
func New() *Index {
	return &Index{
		byHash: make(map[chainhash.Hash]int),
		tips:   make(map[int]struct{}),
	}
}

// AddGenesis inserts a header with no parent requirement, used for the
// chain's genesis block or for any header accepted as a new root.
func (idx *Index) AddGenesis(header *wire.BlockHeader) NodeIndex {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	return idx.insertLocked(header, noIndex, 0, new(big.Int))
}

// AddChild inserts header as a child of parent, computing height and
// cumulative work from it. It returns ok=false if parent is not a valid
// index into this tree.
func (idx *Index) AddChild(parent NodeIndex, header *wire.BlockHeader) (NodeIndex, bool) {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()

	pi := int(parent)
	if pi < 0 || pi >= len(idx.nodes) {
		return 0, false
	}
	p := &idx.nodes[pi]
	work := new(big.Int).Add(p.work, blockProofWork(header.Bits))
	ni := idx.insertLocked(header, pi, p.height+1, work)
	delete(idx.tips, pi)
	return ni, true
}

func (idx *Index) insertLocked(header *wire.BlockHeader, parent int, height int32, work *big.Int) NodeIndex {
	n := node{
		hash:   header.BlockHash(),
		header: *header,
		parent: parent,
		height: height,
		work:   work,
	}
	i := len(idx.nodes)
	idx.nodes = append(idx.nodes, n)
	idx.byHash[n.hash] = i
	idx.tips[i] = struct{}{}
	return NodeIndex(i)
}

// Lookup returns the node index for hash, if known.
func (idx *Index) Lookup(hash *chainhash.Hash) (NodeIndex, bool) {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	i, ok := idx.byHash[*hash]
	return NodeIndex(i), ok
}

// Header returns a copy of the header stored at ni.
func (idx *Index) Header(ni NodeIndex) wire.BlockHeader {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	return idx.nodes[int(ni)].header
}

// Height returns the height of ni.
func (idx *Index) Height(ni NodeIndex) int32 {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	return idx.nodes[int(ni)].height
}

// Work returns the cumulative chain work up to and including ni.
func (idx *Index) Work(ni NodeIndex) *big.Int {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	return new(big.Int).Set(idx.nodes[int(ni)].work)
}

// Parent returns the parent of ni, and ok=false if ni has no parent
// (it is a root).
func (idx *Index) Parent(ni NodeIndex) (NodeIndex, bool) {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	p := idx.nodes[int(ni)].parent
	if p == noIndex {
		return 0, false
	}
	return NodeIndex(p), true
}

// SetStatus ORs flags into ni's status bits.
func (idx *Index) SetStatus(ni NodeIndex, flags StatusFlags) {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	idx.nodes[int(ni)].status |= flags
}

// Status returns ni's current status bits.
func (idx *Index) Status(ni NodeIndex) StatusFlags {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	return idx.nodes[int(ni)].status
}

// Ancestor walks parent links from ni until it finds the node at
// height, or returns ok=false if height is out of range for ni's
// branch. This is the core operation the spec's "ancestor navigation"
// requirement needs, and it is why the arena stores parent by index:
// each step is a slice lookup, never a pointer dereference that could
// be invalidated by a concurrent reorg.
func (idx *Index) Ancestor(ni NodeIndex, height int32) (NodeIndex, bool) {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()

	i := int(ni)
	if i < 0 || i >= len(idx.nodes) {
		return 0, false
	}
	if height < 0 || height > idx.nodes[i].height {
		return 0, false
	}
	for idx.nodes[i].height > height {
		p := idx.nodes[i].parent
		if p == noIndex {
			return 0, false
		}
		i = p
	}
	return NodeIndex(i), true
}

// LastCommonAncestor returns the highest node that is an ancestor of
// both a and b (including a or b themselves), used to compute a peer's
// last-common-block pointer after a reorg.
func (idx *Index) LastCommonAncestor(a, b NodeIndex) (NodeIndex, bool) {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()

	ai, bi := int(a), int(b)
	ha, hb := idx.nodes[ai].height, idx.nodes[bi].height
	for ha > hb {
		ai = idx.nodes[ai].parent
		if ai == noIndex {
			return 0, false
		}
		ha--
	}
	for hb > ha {
		bi = idx.nodes[bi].parent
		if bi == noIndex {
			return 0, false
		}
		hb--
	}
	for ai != bi {
		ai = idx.nodes[ai].parent
		bi = idx.nodes[bi].parent
		if ai == noIndex || bi == noIndex {
			return 0, false
		}
	}
	return NodeIndex(ai), true
}

// Tip returns the node with the greatest cumulative work, the tree's
// current best-chain tip.
func (idx *Index) Tip() (NodeIndex, bool) {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()

	var best = -1
	for i := range idx.tips {
		if best == -1 || idx.nodes[i].work.Cmp(idx.nodes[best].work) > 0 {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return NodeIndex(best), true
}

// Len returns the number of headers stored in the index.
func (idx *Index) Len() int {
	idx.mtx.RLock()
	defer idx.mtx.RUnlock()
	return len(idx.nodes)
}

// blockProofWork converts a compact-form difficulty target into the
// chain-work contribution of a single block: 2^256 / (target + 1).
func blockProofWork(bits uint32) *big.Int {
	target := compactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(numerator, denom)
}

// CompactToBig decodes a block header's compact-form difficulty target
// (a wire.BlockHeader.Bits value) into a big.Int. Exported so callers
// outside the index, such as a minimal proof-of-work check, don't need
// to reimplement the encoding.
func CompactToBig(compact uint32) *big.Int {
	return compactToBig(compact)
}

// compactToBig decodes a block header's compact-form difficulty target
// (the same encoding as a wire.BlockHeader.Bits field) into a big.Int.
func compactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if compact&0x00800000 != 0 {
		bn = bn.Neg(bn)
	}
	return bn
}
