// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"time"

	"github.com/decred/dcrd/lru"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

const (
	// maxHeadersResults is the largest headers payload a well-behaved
	// peer sends; a full batch is the signal to immediately follow up
	// with another getheaders.
	maxHeadersResults = 2000

	// unconnectedHeadersTimeout bounds how long a header may wait in the
	// unconnected cache for its parent to arrive before it is treated as
	// stale and dropped on next lookup.
	unconnectedHeadersTimeout = 20 * time.Minute

	// unconnectedCacheLimit bounds the number of distinct parent hashes
	// the unconnected cache tracks at once.
	unconnectedCacheLimit = 4096

	// directFetchWindow is expressed in target-spacings: direct-fetch is
	// only enabled when the chain tip is within this many block
	// intervals of real time.
	directFetchWindow = 20

	// maxStallHeaderAge bounds how old the first header of a batch may
	// be, during initial sync, before a discontinuity is treated as a
	// stalling attempt rather than an honest fork.
	maxStallHeaderAge = 24 * time.Hour
)

// HeaderValidator is the external collaborator that validates a single
// header against consensus rules and, if valid, inserts it into the
// shared header index.
type HeaderValidator interface {
	AcceptBlockHeader(header *wire.BlockHeader, parent blockindex.NodeIndex) (blockindex.NodeIndex, bool, error)
}

// unconnectedEntry is one header waiting in the unconnected cache for its
// parent to arrive.
type unconnectedEntry struct {
	header  *wire.BlockHeader
	arrived time.Time
}

// unconnectedHeaderCache indexes pending headers by the hash of the
// parent they are waiting on, so extending a newly accepted tail is a
// single lookup rather than a scan. It is itself a bounded
// github.com/decred/dcrd/lru.KVCache: a parent hash that never arrives
// eventually ages out of the cache under LRU pressure, and any entry
// still present past unconnectedHeadersTimeout is discarded the next
// time it is looked up.
type unconnectedHeaderCache struct {
	cache lru.KVCache
}

func newUnconnectedHeaderCache() *unconnectedHeaderCache {
	return &unconnectedHeaderCache{cache: lru.NewKVCache(unconnectedCacheLimit)}
}

func (c *unconnectedHeaderCache) add(h *wire.BlockHeader) {
	key := h.PrevBlock
	var entries []unconnectedEntry
	if v, ok := c.cache.Lookup(key); ok {
		entries = v.([]unconnectedEntry)
	}
	entries = append(entries, unconnectedEntry{header: h, arrived: time.Now()})
	c.cache.Add(key, entries)
}

// takeChildrenOf removes and returns every header waiting on parentHash,
// dropping any that have aged out.
func (c *unconnectedHeaderCache) takeChildrenOf(parentHash chainhash.Hash) []*wire.BlockHeader {
	v, ok := c.cache.Lookup(parentHash)
	if !ok {
		return nil
	}
	c.cache.Delete(parentHash)

	entries := v.([]unconnectedEntry)
	now := time.Now()
	fresh := make([]*wire.BlockHeader, 0, len(entries))
	for _, e := range entries {
		if now.Sub(e.arrived) <= unconnectedHeadersTimeout {
			fresh = append(fresh, e.header)
		}
	}
	return fresh
}

// HeaderSync drives chain-tip discovery: accepting a peer's headers batch,
// extending it with anything already waiting in the unconnected cache,
// handing each contiguous header to the external validator, and deciding
// whether to follow up with another getheaders or a direct block fetch.
type HeaderSync struct {
	chain     ChainView
	validator HeaderValidator
	reqMgr    *RequestManager
	unconn    *unconnectedHeaderCache

	targetSpacing time.Duration

	// lenientTimeout, when true, restores the historical behavior of not
	// disconnecting a peer whose initial headers batch misses the
	// expected starting height; the default (false) disconnects.
	lenientTimeout bool
}

// NewHeaderSync returns a HeaderSync driving chain against the given
// validator and request manager.
func NewHeaderSync(chain ChainView, validator HeaderValidator, reqMgr *RequestManager, targetSpacing time.Duration) *HeaderSync {
	return &HeaderSync{
		chain:         chain,
		validator:     validator,
		reqMgr:        reqMgr,
		unconn:        newUnconnectedHeaderCache(),
		targetSpacing: targetSpacing,
	}
}

// HandleHeaders processes one headers payload from p, following the
// contiguous-prefix / unconnected-cache / direct-fetch algorithm.
// allPeers is consulted for the broadcast-getheaders step while still in
// initial block download.
func (hs *HeaderSync) HandleHeaders(p *peer.Peer, msg *wire.MsgHeaders, allPeers []*peer.Peer) error {
	headers := msg.Headers
	if len(headers) == 0 {
		p.SetSyncStarted(false)
		return errNoHeaders
	}

	firstBreak := -1
	for i, h := range headers {
		if i == 0 {
			if _, ok := hs.chain.Index().Lookup(&h.PrevBlock); !ok {
				firstBreak = i
				break
			}
			continue
		}
		prevHash := headers[i-1].BlockHash()
		if h.PrevBlock != prevHash {
			firstBreak = i
			break
		}
	}

	if firstBreak == 0 && hs.chain.IsInitialBlockDownload() {
		if headers[0].Timestamp.Before(time.Now().Add(-maxStallHeaderAge)) {
			p.RequestDisconnect()
			return errStallingPeer
		}
	}

	contiguous := headers
	if firstBreak >= 0 {
		contiguous = headers[:firstBreak]
		for _, h := range headers[firstBreak:] {
			hs.unconn.add(h)
			hash := h.BlockHash()
			p.UpdateLastAnnouncedBlock(&hash)
		}
	}

	tail, accepted, err := hs.acceptContiguous(p, contiguous)
	if err != nil {
		return err
	}
	if accepted == 0 {
		return nil
	}

	tail = hs.extendFromUnconnected(tail, p)

	if len(headers) == maxHeadersResults {
		tailHeader := hs.chain.Index().Header(tail)
		tailHash := tailHeader.BlockHash()
		locator := peer.BlockLocator{&tailHash}
		if err := p.PushGetHeadersMsg(locator, &chainhash.Hash{}); err != nil {
			return err
		}
		p.SetSyncStarted(true)
	}

	if hs.chain.IsInitialBlockDownload() {
		hs.broadcastAvailabilityRefresh(tail, allPeers)
	}

	if hs.directFetchEnabled(tail) {
		hs.directFetch(tail, p)
	}

	firstExpected := p.FirstHeadersExpectedHeight()
	if !p.InitialHeadersReceived() && firstExpected != 0 {
		if hs.chain.Index().Height(tail) >= firstExpected || hs.lenientTimeout {
			p.SetInitialHeadersReceived(true)
		}
	}

	return nil
}

// acceptContiguous hands each header in order to the validator, stopping
// and truncating on the first invalid one. p may be nil when the headers
// being accepted come from the unconnected cache rather than directly off
// a peer's wire; in that case the per-header peer-facing side effects
// (misbehavior scoring, best-known-block bookkeeping) are skipped.
func (hs *HeaderSync) acceptContiguous(p *peer.Peer, headers []*wire.BlockHeader) (blockindex.NodeIndex, int, error) {
	var tail blockindex.NodeIndex
	accepted := 0
	for _, h := range headers {
		parentNI, ok := hs.chain.Index().Lookup(&h.PrevBlock)
		if !ok {
			break
		}
		ni, valid, err := hs.validator.AcceptBlockHeader(h, parentNI)
		if err != nil {
			return tail, accepted, err
		}
		if !valid {
			if p != nil {
				p.Misbehaving(20)
			}
			break
		}
		tail = ni
		accepted++
		if p != nil {
			hash := h.BlockHash()
			p.SetBestKnownBlock(ni)
			p.UpdateLastAnnouncedBlock(&hash)
		}
	}
	return tail, accepted, nil
}

// extendFromUnconnected repeatedly pulls headers waiting on tail out of
// the unconnected cache and accepts them, to a fixed point. The headers
// reconnected this way never came directly off p's wire, so they're run
// through acceptContiguous with a nil peer; once the tail has actually
// advanced, p (the peer whose batch triggered the reconnection) has its
// best-known-block updated to the new tail.
func (hs *HeaderSync) extendFromUnconnected(tail blockindex.NodeIndex, p *peer.Peer) blockindex.NodeIndex {
	orig := tail
	for {
		tailHeader := hs.chain.Index().Header(tail)
		tailHash := tailHeader.BlockHash()
		waiting := hs.unconn.takeChildrenOf(tailHash)
		if len(waiting) == 0 {
			break
		}
		newTail, accepted, err := hs.acceptContiguous(nil, waiting)
		if err != nil || accepted == 0 {
			break
		}
		tail = newTail
	}
	if tail != orig && p != nil {
		p.SetBestKnownBlock(tail)
	}
	return tail
}

// broadcastAvailabilityRefresh sends a one-header getheaders (empty
// locator, hashStop = tail) to every other full node whose best-known
// block is behind tail, to refresh their advertised availability.
func (hs *HeaderSync) broadcastAvailabilityRefresh(tail blockindex.NodeIndex, peers []*peer.Peer) {
	tailHeight := hs.chain.Index().Height(tail)
	tailHeader := hs.chain.Index().Header(tail)
	tailHash := tailHeader.BlockHash()
	for _, other := range peers {
		if other.Services()&wire.SFNodeNetwork == 0 {
			continue
		}
		bestKnown, ok := other.BestKnownBlock()
		if ok && hs.chain.Index().Height(bestKnown) >= tailHeight {
			continue
		}
		_ = other.PushGetHeadersMsg(nil, &tailHash)
	}
}

// directFetchEnabled reports whether tail is within directFetchWindow
// target-spacings of real time, the gate the original calls
// IsChainNearlySyncd.
func (hs *HeaderSync) directFetchEnabled(tail blockindex.NodeIndex) bool {
	header := hs.chain.Index().Header(tail)
	age := time.Since(header.Timestamp)
	return age <= time.Duration(directFetchWindow)*hs.targetSpacing
}

// directFetch walks back from tail to the active chain and requests the
// missing blocks from p via RequestManager, in chain order, bounded by
// the per-peer in-flight cap.
func (hs *HeaderSync) directFetch(tail blockindex.NodeIndex, p *peer.Peer) {
	idx := hs.chain.Index()
	if hs.chain.Contains(tail) {
		return
	}
	if idx.Work(tail).Cmp(idx.Work(hs.chain.Tip())) < 0 {
		return
	}

	var toFetch []blockindex.NodeIndex
	ni := tail
	for !hs.chain.Contains(ni) {
		toFetch = append(toFetch, ni)
		parent, ok := idx.Parent(ni)
		if !ok {
			break
		}
		ni = parent
	}

	for i := len(toFetch) - 1; i >= 0; i-- {
		if len(toFetch)-i > maxBlocksInTransitPerPeer {
			break
		}
		header := idx.Header(toFetch[i])
		hash := header.BlockHash()
		iv := wire.NewInvVect(wire.InvTypeBlock, &hash)
		hs.reqMgr.AskFor(iv, p)
	}
}

type headerSyncError string

func (e headerSyncError) Error() string { return string(e) }

const (
	errNoHeaders    = headerSyncError("empty headers message")
	errStallingPeer = headerSyncError("non-contiguous headers during initial sync with stale first header")
)
