// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

// nearlySyncdWindow is expressed in target-spacings, mirroring
// netsync.HeaderSync's direct-fetch gate: the active chain is considered
// nearly synced when its tip is within this many block intervals of real
// time.
const nearlySyncdWindow = 20

// BlockValidator is the external collaborator that performs consensus
// validation. Header-level and full-block validation are both out of
// scope here; Chain calls into BlockValidator for both and otherwise only
// manages the header arena and the active-tip pointer.
type BlockValidator interface {
	// CheckBlockHeader validates header's consensus-level fields
	// (proof of work, timestamp, version) against its already-accepted
	// parent. A non-nil error means the header is invalid, not that
	// validation itself failed.
	CheckBlockHeader(header *wire.BlockHeader, parent *wire.BlockHeader) error

	// ProcessBlock validates the full body of a block already present
	// in the header tree at ni. isOrphan reports that the block's
	// parent has no body yet, so it cannot be connected; the caller
	// keeps it around for when the parent arrives rather than treating
	// this as a validation failure.
	ProcessBlock(ni blockindex.NodeIndex, block *wire.MsgBlock) (isOrphan bool, err error)

	// IsCurrent reports whether local validation believes the chain has
	// caught up with the rest of the network.
	IsCurrent() bool
}

// BlockReader serves full block bodies already known to be valid, the
// seam standing in for the on-disk block store (out of scope here).
type BlockReader interface {
	FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, bool)
}

// Chain wraps a blockindex.Index with the active-tip bookkeeping and
// BlockValidator calls that turn it into the netsync.ChainView and
// netsync.HeaderValidator seams RequestManager, HeaderSync and
// PartitionMonitor consult. None of its own logic performs consensus
// checks; it is pure header-tree plumbing plus a pointer to whichever
// node BlockValidator last confirmed as the active tip.
type Chain struct {
	idx           *blockindex.Index
	validator     BlockValidator
	targetSpacing time.Duration

	mtx    sync.RWMutex
	tip    blockindex.NodeIndex
	hasTip bool
}

// NewChain returns a Chain backed by idx, consulting validator for
// consensus decisions. idx must already contain at least a genesis
// header; call SetActiveTip to seed the initial tip.
func NewChain(idx *blockindex.Index, validator BlockValidator, targetSpacing time.Duration) *Chain {
	return &Chain{idx: idx, validator: validator, targetSpacing: targetSpacing}
}

// Index returns the underlying header arena.
func (c *Chain) Index() *blockindex.Index {
	return c.idx
}

// SetActiveTip records ni as the active chain's tip, used at startup to
// seed the genesis block. ProcessBlock advances the tip itself once a
// block body extends the best chain.
func (c *Chain) SetActiveTip(ni blockindex.NodeIndex) {
	c.mtx.Lock()
	c.tip = ni
	c.hasTip = true
	c.mtx.Unlock()
}

// Tip returns the active chain's current tip.
func (c *Chain) Tip() blockindex.NodeIndex {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.tip
}

// Contains reports whether ni is on the active chain (an ancestor of, or
// equal to, the current tip).
func (c *Chain) Contains(ni blockindex.NodeIndex) bool {
	tip := c.Tip()
	lca, ok := c.idx.LastCommonAncestor(tip, ni)
	return ok && lca == ni
}

// IsInitialBlockDownload reports whether the local validator still
// considers the chain behind the rest of the network.
func (c *Chain) IsInitialBlockDownload() bool {
	return !c.validator.IsCurrent()
}

// IsChainNearlySyncd reports whether the active tip's timestamp is within
// nearlySyncdWindow target-spacings of now, the gate HeaderSync's
// direct-fetch path and the getheaders broadcast-refresh step both use.
func (c *Chain) IsChainNearlySyncd() bool {
	header := c.idx.Header(c.Tip())
	return time.Since(header.Timestamp) <= time.Duration(nearlySyncdWindow)*c.targetSpacing
}

// Locator builds a sparse block locator walking back from ni toward
// genesis, doubling its step with each entry after the tenth, the same
// construction used throughout the Bitcoin family to let a peer find a
// fork point in O(log n) round trips.
func (c *Chain) Locator(ni blockindex.NodeIndex) peer.BlockLocator {
	var locator peer.BlockLocator

	cur := ni
	height := c.idx.Height(cur)
	step := int32(1)
	for {
		header := c.idx.Header(cur)
		hash := header.BlockHash()
		locator = append(locator, &hash)
		if height == 0 || len(locator) >= wire.MaxBlockLocatorsPerMsg {
			break
		}

		target := height - step
		if target < 0 {
			target = 0
		}
		anc, ok := c.idx.Ancestor(cur, target)
		if !ok {
			break
		}
		cur = anc
		height = target
		if len(locator) > 10 {
			step *= 2
		}
	}
	return locator
}

// FindFork returns the highest node named in locator that is on the
// active chain, the entry point for answering a getblocks or getheaders
// request.
func (c *Chain) FindFork(locator peer.BlockLocator) (blockindex.NodeIndex, bool) {
	for _, h := range locator {
		if ni, ok := c.idx.Lookup(h); ok && c.Contains(ni) {
			return ni, true
		}
	}
	return 0, false
}

// HashRange walks the active chain forward from start (exclusive) up to
// max hashes, stopping early at stop if given.
func (c *Chain) HashRange(start blockindex.NodeIndex, stop *chainhash.Hash, max int) []*chainhash.Hash {
	tip := c.Tip()
	tipHeight := c.idx.Height(tip)
	startHeight := c.idx.Height(start)

	var out []*chainhash.Hash
	for h := startHeight + 1; h <= tipHeight && len(out) < max; h++ {
		ni, ok := c.idx.Ancestor(tip, h)
		if !ok {
			break
		}
		header := c.idx.Header(ni)
		hash := header.BlockHash()
		out = append(out, &hash)
		if stop != nil && hash == *stop {
			break
		}
	}
	return out
}

// HeaderRange walks the active chain forward from start (exclusive) up to
// max headers, stopping early at stop if given. It mirrors HashRange but
// hands back the headers themselves, the shape a getheaders reply needs.
func (c *Chain) HeaderRange(start blockindex.NodeIndex, stop *chainhash.Hash, max int) []*wire.BlockHeader {
	tip := c.Tip()
	tipHeight := c.idx.Height(tip)
	startHeight := c.idx.Height(start)

	var out []*wire.BlockHeader
	for h := startHeight + 1; h <= tipHeight && len(out) < max; h++ {
		ni, ok := c.idx.Ancestor(tip, h)
		if !ok {
			break
		}
		header := c.idx.Header(ni)
		out = append(out, &header)
		hash := header.BlockHash()
		if stop != nil && hash == *stop {
			break
		}
	}
	return out
}

// AcceptBlockHeader implements netsync.HeaderValidator: it validates
// header against parent and, if valid, inserts it into the arena.
func (c *Chain) AcceptBlockHeader(header *wire.BlockHeader, parent blockindex.NodeIndex) (blockindex.NodeIndex, bool, error) {
	parentHeader := c.idx.Header(parent)
	if err := c.validator.CheckBlockHeader(header, &parentHeader); err != nil {
		return 0, false, nil
	}
	ni, ok := c.idx.AddChild(parent, header)
	if !ok {
		return 0, false, fmt.Errorf("node: parent index %d vanished while inserting header", parent)
	}
	return ni, true, nil
}

// ProcessBlock hands a full block body to the validator and, once it is
// connected, advances the active tip if the block extends the
// best-by-work branch.
func (c *Chain) ProcessBlock(ni blockindex.NodeIndex, block *wire.MsgBlock) (isOrphan bool, err error) {
	isOrphan, err = c.validator.ProcessBlock(ni, block)
	if err != nil || isOrphan {
		return isOrphan, err
	}

	c.idx.SetStatus(ni, blockindex.StatusHaveData)

	c.mtx.Lock()
	if !c.hasTip || c.idx.Work(ni).Cmp(c.idx.Work(c.tip)) > 0 {
		c.tip = ni
		c.hasTip = true
	}
	c.mtx.Unlock()
	return false, nil
}
