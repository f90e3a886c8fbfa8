// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"math"
	"math/rand"
	"time"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/netsync"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

// Constants named in spec.md §4.4 and §6.
const (
	maxBlocksToAnnounce = 8
	maxInvToSend        = 1000
	antiLeechWindow     = 120 * time.Second
	localAddrMeanSpan   = 24 * time.Hour
)

// banChecker reports whether an address currently sits in the ban list.
// *BanList satisfies it.
type banChecker interface {
	IsBanned(addr string) bool
}

// SenderConfig holds PeerSender's tunables.
type SenderConfig struct {
	// InitialHeadersTimeout bounds how long a peer that started a
	// headers sync has to deliver a first batch meeting
	// FirstHeadersExpectedHeight before it is disconnected, unless
	// LenientSyncTimeout restores the historical (never-disconnect)
	// behavior per SPEC_FULL.md §E Open Question 1.
	InitialHeadersTimeout time.Duration
	LenientSyncTimeout    bool

	// LocalAddr returns the address to advertise to a peer as our own,
	// or nil to skip local-address broadcast entirely (e.g. no
	// externally reachable listener configured).
	LocalAddr func(remote *wire.NetAddress) *wire.NetAddress
}

// PeerSender is spec.md §4.4's PeerSender: run once per peer on every
// tick of an external ticker, it performs the ordered, non-blocking
// per-peer maintenance steps that don't belong on the read goroutine.
// Ping scheduling (step 3 of the original ordering) is not reimplemented
// here: Peer already runs its own pingTicker goroutine per connection
// (peer.go's startPeer), which is the teacher's own placement of that
// concern, so PeerSender does not duplicate it.
type PeerSender struct {
	cfg SenderConfig

	chain   *Chain
	reqMgr  *netsync.RequestManager
	banner  banChecker
	thin    ThinBlockHandler
	drainer GetDataDrainer
}

// NewPeerSender returns a PeerSender driving the given collaborators.
// thin and drainer may be nil.
func NewPeerSender(cfg SenderConfig, chain *Chain, reqMgr *netsync.RequestManager,
	banner banChecker, thin ThinBlockHandler, drainer GetDataDrainer) *PeerSender {

	return &PeerSender{
		cfg:     cfg,
		chain:   chain,
		reqMgr:  reqMgr,
		banner:  banner,
		thin:    thin,
		drainer: drainer,
	}
}

// Tick runs one pass of every ordered maintenance action against p.
func (s *PeerSender) Tick(p *peer.Peer) {
	if s.shouldDisconnect(p) {
		p.Disconnect()
		return
	}

	if !p.Connected() {
		s.checkInitialHeadersTimeout(p)
		return
	}

	if s.thin != nil && s.thin.CheckDownloadTimeout(p) && !p.Whitelisted() {
		p.RequestDisconnect()
	}

	s.reqMgr.DisconnectOnDownloadTimeout(p, time.Now())
	s.checkInitialHeadersTimeout(p)

	if s.drainer != nil && p.PendingGetDataLen() > 0 {
		s.drainer.ServeGetData(p, maxGetDataPerTick)
	}

	s.broadcastAddr(p)
	s.announceBlocks(p)
	s.drainInventory(p)
	s.requestNextBlocks(p)
}

// shouldDisconnect implements step 1: a banned or gracefully-departing
// peer is torn down once it holds no in-flight blocks.
func (s *PeerSender) shouldDisconnect(p *peer.Peer) bool {
	banned := s.banner != nil && s.banner.IsBanned(p.Addr())
	if !banned && !p.DisconnectRequested() {
		return false
	}
	return s.reqMgr.InFlightForPeer(p) == 0
}

// checkInitialHeadersTimeout implements SPEC_FULL.md §E Open Question 1:
// a peer that started a sync but never delivered the expected first
// batch is disconnected once InitialHeadersTimeout elapses, unless
// LenientSyncTimeout restores the historical no-op behavior.
func (s *PeerSender) checkInitialHeadersTimeout(p *peer.Peer) {
	if s.cfg.LenientSyncTimeout {
		return
	}
	if !p.SyncStarted() || p.InitialHeadersReceived() {
		return
	}
	if time.Since(p.SyncStartTime()) > s.cfg.InitialHeadersTimeout {
		log.Warnf("disconnecting %s: no headers within %s of starting sync", p, s.cfg.InitialHeadersTimeout)
		p.RequestDisconnect()
	}
}

// broadcastAddr implements step 6: Poisson-scheduled local-address
// advertisement plus draining the relay backlog QueuePendingAddr filled.
func (s *PeerSender) broadcastAddr(p *peer.Peer) {
	if !s.chain.IsInitialBlockDownload() && s.cfg.LocalAddr != nil {
		now := time.Now()
		if now.After(p.NextLocalAddrSend()) {
			if na := s.cfg.LocalAddr(p.NA()); na != nil {
				_, _ = p.PushAddrMsg([]*wire.NetAddress{na})
			}
			p.SetNextLocalAddrSend(now.Add(poissonInterval(localAddrMeanSpan)))
		}
	}

	for {
		batch := p.DrainPendingAddr(wire.MaxAddrPerMsg)
		if len(batch) == 0 {
			return
		}
		if _, err := p.PushAddrMsg(batch); err != nil {
			return
		}
		if len(batch) < wire.MaxAddrPerMsg {
			return
		}
	}
}

// poissonInterval draws a Poisson-process inter-arrival time with the
// given mean, the same exponential-distribution construction spec.md
// §4.6's PartitionMonitor uses for its block-count model.
func poissonInterval(mean time.Duration) time.Duration {
	u := rand.Float64()
	if u <= 0 {
		u = 1e-9
	}
	return time.Duration(-math.Log(u) * float64(mean))
}

// announceBlocks implements step 7: prefer a contiguous headers
// announcement, falling back to inv when the pending hashes don't form
// one starting from the active chain.
func (s *PeerSender) announceBlocks(p *peer.Peer) {
	hashes := p.DrainAnnounceHashes()
	if len(hashes) == 0 {
		return
	}
	if len(hashes) > maxBlocksToAnnounce {
		hashes = hashes[len(hashes)-maxBlocksToAnnounce:]
	}

	if p.PrefersHeaders() {
		if headers, ok := s.contiguousHeaders(hashes); ok {
			msg := wire.NewMsgHeaders()
			for _, h := range headers {
				_ = msg.AddBlockHeader(h)
			}
			p.QueueMessage(msg, nil)
			return
		}
	}

	inv := wire.NewMsgInv()
	for _, hash := range hashes {
		h := hash
		iv := wire.NewInvVect(wire.InvTypeBlock, &h)
		if p.KnowsInventory(iv) {
			continue
		}
		_ = inv.AddInvVect(iv)
		p.AddKnownInventory(iv)
	}
	if len(inv.InvList) > 0 {
		p.QueueMessage(inv, nil)
	}
}

// contiguousHeaders resolves hashes to on-chain nodes and returns their
// headers in ascending-height order, failing if any hash is unknown, off
// the active chain, or the set does not form a contiguous run.
func (s *PeerSender) contiguousHeaders(hashes []chainhash.Hash) ([]*wire.BlockHeader, bool) {
	idx := s.chain.Index()
	nodes := make([]blockindex.NodeIndex, 0, len(hashes))
	for _, h := range hashes {
		ni, ok := idx.Lookup(&h)
		if !ok || !s.chain.Contains(ni) {
			return nil, false
		}
		nodes = append(nodes, ni)
	}

	for i := 1; i < len(nodes); i++ {
		if idx.Height(nodes[i]) != idx.Height(nodes[i-1])+1 {
			return nil, false
		}
		parent, ok := idx.Parent(nodes[i])
		if !ok || parent != nodes[i-1] {
			return nil, false
		}
	}

	headers := make([]*wire.BlockHeader, len(nodes))
	for i, ni := range nodes {
		h := idx.Header(ni)
		headers[i] = &h
	}
	return headers, true
}

// drainInventory implements step 8: batches of maxInvToSend, applying
// the anti-leech throttle to MSG_TX entries only.
func (s *PeerSender) drainInventory(p *peer.Peer) {
	for {
		pending := p.DrainPendingInv(maxInvToSend)
		if len(pending) == 0 {
			return
		}

		inv := wire.NewMsgInv()
		stale := time.Since(p.LastActivity()) > antiLeechWindow
		for _, iv := range pending {
			if iv.Type == wire.InvTypeTx {
				if p.KnowsInventory(iv) || stale {
					continue
				}
			}
			_ = inv.AddInvVect(iv)
			p.AddKnownInventory(iv)
		}
		if len(inv.InvList) > 0 {
			p.QueueMessage(inv, nil)
		}
		if len(pending) < maxInvToSend {
			return
		}
	}
}

// requestNextBlocks implements step 9.
func (s *PeerSender) requestNextBlocks(p *peer.Peer) {
	hashes := s.reqMgr.RequestNextBlocksToDownload(p)
	if len(hashes) == 0 {
		return
	}
	getData := wire.NewMsgGetData()
	for _, h := range hashes {
		_ = getData.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, h))
	}
	p.QueueMessage(getData, nil)
}
