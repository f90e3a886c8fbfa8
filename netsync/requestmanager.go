// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"math/rand"
	"sync"
	"time"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

const (
	// maxBlocksInTransitPerPeer bounds how many blocks RequestManager will
	// have outstanding against a single peer at once.
	maxBlocksInTransitPerPeer = 16

	// blockDownloadWindow is the block-download window, in blocks.
	// RequestNextBlocksToDownload does not consult it: candidates carry
	// no height, so selection is bounded only by maxBlocksInTransitPerPeer.
	blockDownloadWindow = 1024

	// askForJitter spreads AskFor candidates' earliest-send time so many
	// simultaneous invs don't all fire the same instant.
	askForJitter = 2 * time.Second

	// stallTimeoutBase and stallTimeoutPerBlock together give the stall
	// threshold used by DisconnectOnDownloadTimeout: it grows with the
	// number of blocks currently in flight from the peer so a peer
	// legitimately serving many blocks isn't punished as quickly as one
	// serving a single stuck block.
	stallTimeoutBase     = 30 * time.Second
	stallTimeoutPerBlock = 2 * time.Second
)

// ChainView is the read-only view onto the active chain RequestManager and
// HeaderSync consult. It is satisfied by the node package's chain wrapper
// around a blockindex.Index plus whatever external validator tracks the
// active tip; none of the methods here touch consensus rules.
type ChainView interface {
	Index() *blockindex.Index
	Tip() blockindex.NodeIndex
	Contains(ni blockindex.NodeIndex) bool
	Locator(ni blockindex.NodeIndex) peer.BlockLocator
	IsInitialBlockDownload() bool
	IsChainNearlySyncd() bool
}

// blockRequest records one in-flight (hash, peer) assignment.
type blockRequest struct {
	peerID      int32
	requestedAt time.Time
}

// RequestManager schedules block and transaction downloads across peers,
// keeping every in-flight (hash, peer) pair in one place so FinalizeNode
// can release a disconnecting peer's work without walking every peer.
type RequestManager struct {
	chain ChainView

	mtx        sync.Mutex
	inFlight   map[chainhash.Hash]*blockRequest
	perPeer    map[int32]map[chainhash.Hash]struct{}
	candidates map[chainhash.Hash]time.Time
	rejects    map[int32]uint32

	preferredDownload int32
}

// NewRequestManager returns a RequestManager consulting chain for tip and
// membership information.
func NewRequestManager(chain ChainView) *RequestManager {
	return &RequestManager{
		chain:      chain,
		inFlight:   make(map[chainhash.Hash]*blockRequest),
		perPeer:    make(map[int32]map[chainhash.Hash]struct{}),
		candidates: make(map[chainhash.Hash]time.Time),
		rejects:    make(map[int32]uint32),
	}
}

// AskFor adds iv to the candidate queue for p, suppressing a duplicate
// request already pending for the same peer.
func (m *RequestManager) AskFor(iv *wire.InvVect, p *peer.Peer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if peers, ok := m.perPeer[p.ID()]; ok {
		if _, dup := peers[iv.Hash]; dup {
			return
		}
	}
	if _, inFlight := m.inFlight[iv.Hash]; inFlight {
		return
	}
	if _, pending := m.candidates[iv.Hash]; pending {
		return
	}

	jitter := time.Duration(rand.Int63n(int64(askForJitter)))
	m.candidates[iv.Hash] = time.Now().Add(jitter)
}

// RequestNextBlocksToDownload selects up to maxBlocksInTransitPerPeer
// candidate hashes to request from p and returns them in no particular
// order, recording each as in-flight. Callers are
// responsible for actually sending the getdata message.
func (m *RequestManager) RequestNextBlocksToDownload(p *peer.Peer) []*chainhash.Hash {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	inFlightForPeer := len(m.perPeer[p.ID()])
	room := maxBlocksInTransitPerPeer - inFlightForPeer
	if room <= 0 || len(m.candidates) == 0 {
		return nil
	}

	now := time.Now()
	var selected []*chainhash.Hash
	for hash, earliest := range m.candidates {
		if len(selected) >= room {
			break
		}
		if earliest.After(now) {
			continue
		}
		hash := hash
		selected = append(selected, &hash)
	}

	for _, hash := range selected {
		delete(m.candidates, *hash)
		m.recordInFlightLocked(*hash, p)
	}
	return selected
}

func (m *RequestManager) recordInFlightLocked(hash chainhash.Hash, p *peer.Peer) {
	m.inFlight[hash] = &blockRequest{peerID: p.ID(), requestedAt: time.Now()}
	if m.perPeer[p.ID()] == nil {
		m.perPeer[p.ID()] = make(map[chainhash.Hash]struct{})
	}
	m.perPeer[p.ID()][hash] = struct{}{}
}

// Processing records that an asked-for inv is now in flight, refreshing its
// request time for retry scheduling.
func (m *RequestManager) Processing(hash chainhash.Hash, p *peer.Peer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if req, ok := m.inFlight[hash]; ok && req.peerID == p.ID() {
		req.requestedAt = time.Now()
	}
}

// UpdateTxnResponseTime refreshes the in-flight timestamp for hash without
// changing its assigned peer, used when a partial response (e.g. a
// not-found covering other hashes in the same batch) still indicates the
// peer is alive and working.
func (m *RequestManager) UpdateTxnResponseTime(hash chainhash.Hash, p *peer.Peer) {
	m.Processing(hash, p)
}

// Rejected removes the (hash, peer) in-flight entry so another peer may be
// asked, and tallies a reject against p for misbehavior purposes. The
// caller applies misbehavior points; Rejected only does the bookkeeping.
func (m *RequestManager) Rejected(hash chainhash.Hash, p *peer.Peer, code wire.RejectCode) uint32 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.clearLocked(hash, p.ID())
	m.rejects[p.ID()]++
	return m.rejects[p.ID()]
}

// DisconnectOnDownloadTimeout requests disconnection of p, unless
// whitelisted, if any block it holds has been in flight past a threshold
// that grows with how many blocks it currently holds.
func (m *RequestManager) DisconnectOnDownloadTimeout(p *peer.Peer, now time.Time) {
	if p.Whitelisted() {
		return
	}

	m.mtx.Lock()
	peerHashes := m.perPeer[p.ID()]
	threshold := stallTimeoutBase + time.Duration(len(peerHashes))*stallTimeoutPerBlock
	stalled := false
	for hash := range peerHashes {
		req := m.inFlight[hash]
		if req != nil && now.Sub(req.requestedAt) > threshold {
			stalled = true
			break
		}
	}
	m.mtx.Unlock()

	if stalled {
		log.Warnf("disconnecting %s for stalled block download", p)
		p.RequestDisconnect()
	}
}

// FinalizeNode erases all in-flight rows for p and returns its hashes to
// the candidate queue at the front (earliest-send now) so another peer
// can immediately take them over.
func (m *RequestManager) FinalizeNode(p *peer.Peer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for hash := range m.perPeer[p.ID()] {
		delete(m.inFlight, hash)
		m.candidates[hash] = time.Now()
	}
	delete(m.perPeer, p.ID())
	delete(m.rejects, p.ID())

	if p.PreferredDownload() {
		m.preferredDownload--
	}
}

// SetPreferredDownload flips p's preferred-download flag and keeps the
// atomic mirror counter in sync with it.
func (m *RequestManager) SetPreferredDownload(p *peer.Peer, v bool) {
	if p.PreferredDownload() == v {
		return
	}
	p.SetPreferredDownload(v)

	m.mtx.Lock()
	if v {
		m.preferredDownload++
	} else {
		m.preferredDownload--
	}
	m.mtx.Unlock()
}

// PreferredDownloadCount returns the current atomic mirror of the number
// of live peers counted as preferred-download.
func (m *RequestManager) PreferredDownloadCount() int32 {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.preferredDownload
}

func (m *RequestManager) clearLocked(hash chainhash.Hash, peerID int32) {
	delete(m.inFlight, hash)
	if peers, ok := m.perPeer[peerID]; ok {
		delete(peers, hash)
	}
}

// InFlightCount reports how many blocks are currently assigned to any
// peer, for tests and operability metrics.
func (m *RequestManager) InFlightCount() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.inFlight)
}

// InFlightForPeer reports how many blocks are currently assigned to p,
// the gate PeerSender consults before disconnecting a banned or
// gracefully-departing peer: a peer still holding blocks is left alone
// until FinalizeNode releases them.
func (m *RequestManager) InFlightForPeer(p *peer.Peer) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.perPeer[p.ID()])
}
