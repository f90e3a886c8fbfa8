// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer implements a single connection to a remote node: the
// version/verack and BU extension handshakes, the full-duplex read/write
// goroutines, inventory trickling, ping/pong keepalive, and the per-peer
// mutable protocol state (capability flags, sync-progress pointers,
// misbehavior score, pending send queues) that the dispatcher and sender
// packages mutate.
package peer

import (
	"bytes"
	"container/list"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/lru"

	"github.com/btcrelay/peerd/banscore"
	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/bloom"
	"github.com/btcrelay/peerd/chaincfg"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

const (
	// MaxProtocolVersion is the highest protocol version this package
	// negotiates.
	MaxProtocolVersion = wire.ProtocolVersion

	outputBufferSize    = 50
	maxInvTrickleSize   = 1000
	maxKnownInventory   = 1000
	pingInterval        = 2 * time.Minute
	negotiateTimeout    = 30 * time.Second
	idleTimeout         = 5 * time.Minute
	stallResponseTimeout = 30 * time.Second
	trickleTimeout      = 10 * time.Second

	// verackTimeout bounds how long a peer has, after sending version, to
	// complete the handshake and reach StateConnected.
	verackTimeout = 30 * time.Second

	// xthinRateHalflife is the half-life of the decaying get-thinblock
	// rate counter.
	xthinRateHalflife = 10 * time.Minute

	// xthinRateThreshold is the decayed-count threshold past which a
	// peer's thin-block requests are throttled.
	xthinRateThreshold = 20

	// maxKnownAddrs bounds the cache of addresses already queued for
	// relay to this peer, used to deduplicate the pending outbound-addr set.
	maxKnownAddrs = 5000
)

var (
	nodeCount      int32
	sentNonces     = lru.NewCache(50)
	allowSelfConns bool
)

// cmdData is a surrogate response command standing in for block, tx, or
// notfound, any of which answers a getdata request.
const cmdData = "peer:data"

// Peer is a single full-duplex connection to a remote node plus all the
// per-peer protocol state the dispatcher and sender packages need to
// drive it.
type Peer struct {
	conn net.Conn

	addr    string
	cfg     Config
	inbound bool

	// identity
	id          int32
	na          *wire.NetAddress
	whitelisted bool
	oneShot     bool
	feeler      bool

	// handshake
	handshakeMtx    sync.RWMutex
	handshakeState  HandshakeState
	buState         BUHandshakeState
	versionSentAt   time.Time
	protocolVersion uint32
	services        wire.ServiceFlag
	userAgent       string
	startingHeight  int32
	timeOffset      int64
	version         *wire.MsgVersion
	buListenPort    uint16
	relayTx         bool

	// capability flags
	capMtx               sync.RWMutex
	prefersHeaders       bool
	supportsCompactBlocks bool
	thinCapable          bool
	initialHeadersRecv   bool
	requestedInitialAvail bool
	maxThinBloomSize     uint32

	// sync progress, expressed as pointers into the shared header index.
	syncMtx            sync.RWMutex
	bestKnownBlock     blockindex.NodeIndex
	hasBestKnownBlock  bool
	lastCommonBlock    blockindex.NodeIndex
	hasLastCommonBlock bool
	bestHeaderSent     blockindex.NodeIndex
	hasBestHeaderSent  bool
	firstHeadersHeight int32
	syncStartTime      time.Time
	syncStarted        bool
	preferredDownload  bool

	// anti-abuse
	misbehavior  *banscore.Score
	xthinLimiter *banscore.RateCounter
	evictions    int32
	disconnectRequested int32

	knownInventory lru.Cache
	knownAddrs     lru.Cache

	pendingAddrMtx sync.Mutex
	pendingAddr    []*wire.NetAddress

	pendingInvMtx sync.Mutex
	pendingInv    []*wire.InvVect

	announceMtx     sync.Mutex
	announceHashes  []chainhash.Hash

	getDataMtx sync.Mutex
	getData    *list.List

	filterMtx sync.RWMutex
	filter    *bloom.Filter

	prevGetBlocksMtx   sync.Mutex
	prevGetBlocksBegin *chainhash.Hash
	prevGetBlocksStop  *chainhash.Hash

	prevGetHdrsMtx   sync.Mutex
	prevGetHdrsBegin *chainhash.Hash
	prevGetHdrsStop  *chainhash.Hash

	continueMtx  sync.Mutex
	continueHash *chainhash.Hash

	getAddrReceived int32
	sendQueueCount  int32

	statsMtx           sync.RWMutex
	timeConnected      time.Time
	lastSend           time.Time
	lastRecv           time.Time
	lastActivity       time.Time
	bytesReceived      uint64
	bytesSent          uint64
	lastBlock          int32
	lastAnnouncedBlock *chainhash.Hash
	lastPingNonce      uint64
	lastPingTime       time.Time
	lastPingMicros     int64

	timerMtx        sync.Mutex
	nextAddrSend    time.Time
	nextLocalAddrSend time.Time

	disconnectOnce      sync.Once
	disconnectWaitGroup sync.WaitGroup
	disconnect          chan struct{}

	write             chan writeMsg
	writeMsgQueue     chan writeMsg
	writeInvVectQueue chan *wire.InvVect

	responseDeadlinesMtx sync.Mutex
	responseDeadlines    map[string]*pausableTimer
}

// String returns the peer's address and directionality.
func (p *Peer) String() string {
	dir := "outbound"
	if p.inbound {
		dir = "inbound"
	}
	return fmt.Sprintf("%s (%s)", p.addr, dir)
}

// ID returns the peer's process-unique numeric identifier, assigned once
// its version message is processed.
func (p *Peer) ID() int32 { return p.id }

// Addr returns the remote address string, fixed at construction time.
func (p *Peer) Addr() string { return p.addr }

// Inbound reports whether this connection was accepted rather than dialed.
func (p *Peer) Inbound() bool { return p.inbound }

// NA returns the peer's network address.
func (p *Peer) NA() *wire.NetAddress { return p.na }

// Whitelisted reports whether this peer is exempt from banning.
func (p *Peer) Whitelisted() bool { return p.whitelisted }

// SetWhitelisted marks the peer as whitelisted or not.
func (p *Peer) SetWhitelisted(w bool) { p.whitelisted = w }

// HandshakeState returns the peer's current position in {NEW,
// VERSION_RECEIVED, VERACK_RECEIVED, CONNECTED}.
func (p *Peer) HandshakeState() HandshakeState {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.handshakeState
}

// Connected reports whether the peer has completed both the mandatory
// handshake and is not in the process of disconnecting.
func (p *Peer) Connected() bool {
	select {
	case <-p.disconnect:
		return false
	default:
	}
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.handshakeState == StateConnected
}

func (p *Peer) setHandshakeState(s HandshakeState) {
	p.handshakeMtx.Lock()
	p.handshakeState = s
	p.handshakeMtx.Unlock()
}

// BUHandshakeState returns the peer's position in the optional BU
// extension sub-state machine.
func (p *Peer) BUHandshakeState() BUHandshakeState {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.buState
}

func (p *Peer) setBUHandshakeState(s BUHandshakeState) {
	p.handshakeMtx.Lock()
	p.buState = s
	p.handshakeMtx.Unlock()
}

// ProtocolVersion returns the negotiated protocol version.
func (p *Peer) ProtocolVersion() uint32 {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.protocolVersion
}

// Services returns the remote peer's advertised service flags.
func (p *Peer) Services() wire.ServiceFlag {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.services
}

// UserAgent returns the remote peer's sanitized subversion string.
func (p *Peer) UserAgent() string {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.userAgent
}

// StartingHeight returns the height the peer reported at handshake time.
func (p *Peer) StartingHeight() int32 {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.startingHeight
}

// TimeOffset returns the seconds by which the peer's clock differed from
// ours at handshake time.
func (p *Peer) TimeOffset() int64 {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.timeOffset
}

// RelayTx reports whether the remote peer asked to receive transaction
// announcements (its version message's inverse DisableRelayTx flag).
func (p *Peer) RelayTx() bool {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.relayTx
}

// Version returns the negotiated version message, or nil before it has
// arrived.
func (p *Peer) Version() *wire.MsgVersion {
	p.handshakeMtx.RLock()
	defer p.handshakeMtx.RUnlock()
	return p.version
}

// PrefersHeaders reports whether the peer sent sendheaders.
func (p *Peer) PrefersHeaders() bool {
	p.capMtx.RLock()
	defer p.capMtx.RUnlock()
	return p.prefersHeaders
}

// SetPrefersHeaders records that the peer sent sendheaders.
func (p *Peer) SetPrefersHeaders(v bool) {
	p.capMtx.Lock()
	p.prefersHeaders = v
	p.capMtx.Unlock()
}

// SupportsCompactBlocks reports the sendcmpct advertisement.
func (p *Peer) SupportsCompactBlocks() bool {
	p.capMtx.RLock()
	defer p.capMtx.RUnlock()
	return p.supportsCompactBlocks
}

// SetSupportsCompactBlocks records the sendcmpct advertisement.
func (p *Peer) SetSupportsCompactBlocks(v bool) {
	p.capMtx.Lock()
	p.supportsCompactBlocks = v
	p.capMtx.Unlock()
}

// ThinCapable reports whether the peer negotiated xthin support.
func (p *Peer) ThinCapable() bool {
	p.capMtx.RLock()
	defer p.capMtx.RUnlock()
	return p.thinCapable
}

// SetThinCapable records xthin capability.
func (p *Peer) SetThinCapable(v bool) {
	p.capMtx.Lock()
	p.thinCapable = v
	p.capMtx.Unlock()
}

// SetMaxThinBloomSize records the peer's advertised filtersizextn floor.
func (p *Peer) SetMaxThinBloomSize(n uint32) {
	p.capMtx.Lock()
	p.maxThinBloomSize = n
	p.capMtx.Unlock()
}

// MaxThinBloomSize returns the peer's advertised xthin bloom size floor.
func (p *Peer) MaxThinBloomSize() uint32 {
	p.capMtx.RLock()
	defer p.capMtx.RUnlock()
	return p.maxThinBloomSize
}

// PreferredDownload reports whether this peer counts toward the
// process-wide preferred-download total: not one-shot, not a light
// client, and CONNECTED.
func (p *Peer) PreferredDownload() bool {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.preferredDownload
}

// SetPreferredDownload flips the preferred-download flag. Callers are
// responsible for adjusting the process-wide counter to match.
func (p *Peer) SetPreferredDownload(v bool) {
	p.syncMtx.Lock()
	p.preferredDownload = v
	p.syncMtx.Unlock()
}

// SyncStarted reports whether this peer is the node's current sync peer.
func (p *Peer) SyncStarted() bool {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.syncStarted
}

// SetSyncStarted marks or clears this peer as the sync peer, stamping
// syncStartTime when set.
func (p *Peer) SetSyncStarted(v bool) {
	p.syncMtx.Lock()
	p.syncStarted = v
	if v {
		p.syncStartTime = time.Now()
	}
	p.syncMtx.Unlock()
}

// SyncStartTime returns when this peer most recently became the sync
// peer.
func (p *Peer) SyncStartTime() time.Time {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.syncStartTime
}

// BestKnownBlock returns the header-index position of the best block this
// peer is known to have, if any has been recorded yet.
func (p *Peer) BestKnownBlock() (blockindex.NodeIndex, bool) {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.bestKnownBlock, p.hasBestKnownBlock
}

// SetBestKnownBlock records ni as the header-index position of the best
// block this peer is known to have.
func (p *Peer) SetBestKnownBlock(ni blockindex.NodeIndex) {
	p.syncMtx.Lock()
	p.bestKnownBlock, p.hasBestKnownBlock = ni, true
	p.syncMtx.Unlock()
}

// LastCommonBlock returns the last block known to be on both this peer's
// chain and ours, if established.
func (p *Peer) LastCommonBlock() (blockindex.NodeIndex, bool) {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.lastCommonBlock, p.hasLastCommonBlock
}

// SetLastCommonBlock records the last-common-ancestor position.
func (p *Peer) SetLastCommonBlock(ni blockindex.NodeIndex) {
	p.syncMtx.Lock()
	p.lastCommonBlock, p.hasLastCommonBlock = ni, true
	p.syncMtx.Unlock()
}

// BestHeaderSent returns the header-index position of the last header
// announced to this peer.
func (p *Peer) BestHeaderSent() (blockindex.NodeIndex, bool) {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.bestHeaderSent, p.hasBestHeaderSent
}

// SetBestHeaderSent records the last header announced to this peer.
func (p *Peer) SetBestHeaderSent(ni blockindex.NodeIndex) {
	p.syncMtx.Lock()
	p.bestHeaderSent, p.hasBestHeaderSent = ni, true
	p.syncMtx.Unlock()
}

// FirstHeadersExpectedHeight returns the height recorded when we first
// asked this peer for headers starting from our own tip.
func (p *Peer) FirstHeadersExpectedHeight() int32 {
	p.syncMtx.RLock()
	defer p.syncMtx.RUnlock()
	return p.firstHeadersHeight
}

// SetFirstHeadersExpectedHeight records the height at the time of the
// initial getheaders request, for the first-batch height check.
func (p *Peer) SetFirstHeadersExpectedHeight(h int32) {
	p.syncMtx.Lock()
	p.firstHeadersHeight = h
	p.syncMtx.Unlock()
}

// InitialHeadersReceived reports whether the first-headers-received gate
// has been satisfied.
func (p *Peer) InitialHeadersReceived() bool {
	p.capMtx.RLock()
	defer p.capMtx.RUnlock()
	return p.initialHeadersRecv
}

// SetInitialHeadersReceived sets the first-headers-received flag.
func (p *Peer) SetInitialHeadersReceived(v bool) {
	p.capMtx.Lock()
	p.initialHeadersRecv = v
	p.capMtx.Unlock()
}

// Misbehaving adds points to the peer's misbehavior score and reports the
// resulting total, for MisbehaviorTracker to compare against the ban
// threshold.
func (p *Peer) Misbehaving(points uint32) uint32 {
	return p.misbehavior.Increase(points, 0)
}

// MisbehaviorScore returns the peer's current misbehavior score.
func (p *Peer) MisbehaviorScore() uint32 {
	return p.misbehavior.Int()
}

// BumpThinRequest records one get-thinblock request against the decaying
// rate counter and reports whether the peer has now exceeded the
// throttle threshold.
func (p *Peer) BumpThinRequest() bool {
	exceeded, _ := p.xthinLimiter.Bump()
	return exceeded
}

// RequestDisconnect marks the peer for disconnection at the next
// PeerSender tick, without forcing it immediately if blocks are still in
// flight.
func (p *Peer) RequestDisconnect() {
	atomic.StoreInt32(&p.disconnectRequested, 1)
}

// DisconnectRequested reports whether RequestDisconnect has been called.
func (p *Peer) DisconnectRequested() bool {
	return atomic.LoadInt32(&p.disconnectRequested) != 0
}

// AddKnownInventory records that the peer is now known to have iv, so a
// later QueueInventory call for the same item is skipped.
func (p *Peer) AddKnownInventory(iv *wire.InvVect) {
	p.knownInventory.Add(*iv)
}

// KnowsInventory reports whether iv is already in the peer's known-item
// cache.
func (p *Peer) KnowsInventory(iv *wire.InvVect) bool {
	return p.knownInventory.Contains(*iv)
}

// SetFilter installs or clears the peer's transaction-relevance bloom
// filter.
func (p *Peer) SetFilter(f *bloom.Filter) {
	p.filterMtx.Lock()
	p.filter = f
	p.filterMtx.Unlock()
}

// Filter returns the peer's currently loaded bloom filter, or nil if none
// is loaded.
func (p *Peer) Filter() *bloom.Filter {
	p.filterMtx.RLock()
	defer p.filterMtx.RUnlock()
	return p.filter
}

// QueuePendingAddr appends na to this peer's pending-addr relay set,
// capped at four times wire.MaxAddrPerMsg and deduplicated against the
// last maxKnownAddrs addresses already queued for this peer.
func (p *Peer) QueuePendingAddr(na *wire.NetAddress) {
	key := na.IP.String() + ":" + strconv.Itoa(int(na.Port))
	if p.knownAddrs.Contains(key) {
		return
	}
	p.knownAddrs.Add(key)

	p.pendingAddrMtx.Lock()
	if len(p.pendingAddr) < wire.MaxAddrPerMsg*4 {
		p.pendingAddr = append(p.pendingAddr, na)
	}
	p.pendingAddrMtx.Unlock()
}

// DrainPendingAddr removes and returns up to max pending addresses.
func (p *Peer) DrainPendingAddr(max int) []*wire.NetAddress {
	p.pendingAddrMtx.Lock()
	defer p.pendingAddrMtx.Unlock()
	if len(p.pendingAddr) <= max {
		out := p.pendingAddr
		p.pendingAddr = nil
		return out
	}
	out := p.pendingAddr[:max]
	p.pendingAddr = p.pendingAddr[max:]
	return out
}

// QueuePendingInv appends iv to the pending-inv set for the next
// PeerSender drain, unless the peer is already known to have it.
func (p *Peer) QueuePendingInv(iv *wire.InvVect) {
	if p.KnowsInventory(iv) {
		return
	}
	p.pendingInvMtx.Lock()
	p.pendingInv = append(p.pendingInv, iv)
	p.pendingInvMtx.Unlock()
}

// DrainPendingInv removes and returns up to max pending inventory
// vectors.
func (p *Peer) DrainPendingInv(max int) []*wire.InvVect {
	p.pendingInvMtx.Lock()
	defer p.pendingInvMtx.Unlock()
	if len(p.pendingInv) <= max {
		out := p.pendingInv
		p.pendingInv = nil
		return out
	}
	out := p.pendingInv[:max]
	p.pendingInv = p.pendingInv[max:]
	return out
}

// QueueAnnounceHash appends hash to the pending block-announce list used
// by PeerSender's headers-announce step.
func (p *Peer) QueueAnnounceHash(hash chainhash.Hash) {
	p.announceMtx.Lock()
	p.announceHashes = append(p.announceHashes, hash)
	p.announceMtx.Unlock()
}

// DrainAnnounceHashes removes and returns every pending announce hash.
func (p *Peer) DrainAnnounceHashes() []chainhash.Hash {
	p.announceMtx.Lock()
	defer p.announceMtx.Unlock()
	out := p.announceHashes
	p.announceHashes = nil
	return out
}

// QueueGetData appends iv to the deque of inventory this peer has asked
// us for but that the dispatcher has not yet served, so a getdata
// listing many block-class items can be served a few at a time across
// several dispatch calls instead of blocking the read goroutine for the
// whole batch.
func (p *Peer) QueueGetData(items []*wire.InvVect) {
	p.getDataMtx.Lock()
	for _, iv := range items {
		p.getData.PushBack(iv)
	}
	p.getDataMtx.Unlock()
}

// PopGetData removes and returns the oldest queued getdata item, if any.
func (p *Peer) PopGetData() (*wire.InvVect, bool) {
	p.getDataMtx.Lock()
	defer p.getDataMtx.Unlock()
	elem := p.getData.Front()
	if elem == nil {
		return nil, false
	}
	p.getData.Remove(elem)
	return elem.Value.(*wire.InvVect), true
}

// PendingGetDataLen reports how many getdata items remain queued.
func (p *Peer) PendingGetDataLen() int {
	p.getDataMtx.Lock()
	defer p.getDataMtx.Unlock()
	return p.getData.Len()
}

// ContinueHash returns the block hash, if any, that should trigger a
// one-entry inv(tip) once served, telling the peer to send its next
// getblocks. Set when a getblocks reply hits the 500-hash cap.
func (p *Peer) ContinueHash() *chainhash.Hash {
	p.continueMtx.Lock()
	defer p.continueMtx.Unlock()
	return p.continueHash
}

// SetContinueHash records or clears the getblocks continuation marker.
func (p *Peer) SetContinueHash(hash *chainhash.Hash) {
	p.continueMtx.Lock()
	p.continueHash = hash
	p.continueMtx.Unlock()
}

// MarkGetAddrReceived reports whether this is the first getaddr received
// on this connection, marking it seen either way; a repeat is ignored
// per spec's "at most once per connection" rule.
func (p *Peer) MarkGetAddrReceived() bool {
	return atomic.CompareAndSwapInt32(&p.getAddrReceived, 0, 1)
}

// SendQueueSize approximates the peer's outbound send buffer occupancy
// as a count of messages queued or in flight, standing in for the
// original's byte-denominated socket send buffer.
func (p *Peer) SendQueueSize() int32 {
	return atomic.LoadInt32(&p.sendQueueCount)
}

// NextAddrSend and SetNextAddrSend track the Poisson-scheduled next time
// this peer's own address should be re-advertised.
func (p *Peer) NextAddrSend() time.Time {
	p.timerMtx.Lock()
	defer p.timerMtx.Unlock()
	return p.nextAddrSend
}

func (p *Peer) SetNextAddrSend(t time.Time) {
	p.timerMtx.Lock()
	p.nextAddrSend = t
	p.timerMtx.Unlock()
}

func (p *Peer) NextLocalAddrSend() time.Time {
	p.timerMtx.Lock()
	defer p.timerMtx.Unlock()
	return p.nextLocalAddrSend
}

func (p *Peer) SetNextLocalAddrSend(t time.Time) {
	p.timerMtx.Lock()
	p.nextLocalAddrSend = t
	p.timerMtx.Unlock()
}

// UpdateLastBlockHeight records the peer's latest known block height.
func (p *Peer) UpdateLastBlockHeight(height int32) {
	p.statsMtx.Lock()
	p.lastBlock = height
	p.statsMtx.Unlock()
}

// LastBlock returns the peer's latest known block height.
func (p *Peer) LastBlock() int32 {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()
	return p.lastBlock
}

// UpdateLastAnnouncedBlock records the hash of the last block this peer
// is known to have announced to us.
func (p *Peer) UpdateLastAnnouncedBlock(hash *chainhash.Hash) {
	p.statsMtx.Lock()
	p.lastAnnouncedBlock = hash
	p.statsMtx.Unlock()
}

// LastActivity returns the last time a non-keepalive message was
// received from this peer, used for the anti-leech tx-relay throttle.
func (p *Peer) LastActivity() time.Time {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()
	return p.lastActivity
}

// StatsSnapshot returns a copy of the peer's current stats.
func (p *Peer) StatsSnapshot() *StatsSnap {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()
	return &StatsSnap{
		ID:               p.id,
		Addr:             p.addr,
		Services:         p.Services(),
		LastSend:         p.lastSend,
		LastRecv:         p.lastRecv,
		BytesSent:        p.bytesSent,
		BytesRecv:        p.bytesReceived,
		ConnTime:         p.timeConnected,
		TimeOffset:       p.TimeOffset(),
		ProtocolVersion:  p.ProtocolVersion(),
		UserAgent:        p.UserAgent(),
		Inbound:          p.inbound,
		StartingHeight:   p.StartingHeight(),
		LastBlock:        p.lastBlock,
		LastPingNonce:    p.lastPingNonce,
		LastPingTime:     p.lastPingTime,
		LastPingMicros:   p.lastPingMicros,
		MisbehaviorScore: p.MisbehaviorScore(),
		Whitelisted:      p.whitelisted,
	}
}

// localMsgVersion builds the version message this node sends, pulling the
// tip height from the configured ShaFunc and choosing the remote address
// to advertise according to the proxy-leak rule.
func (p *Peer) localMsgVersion() (*wire.MsgVersion, error) {
	var blockNum int32
	if p.cfg.NewestBlock != nil {
		var err error
		if _, blockNum, err = p.cfg.NewestBlock(); err != nil {
			return nil, err
		}
	}

	theirNA := p.na
	if p.cfg.Proxy != "" {
		proxyHost, _, err := net.SplitHostPort(p.cfg.Proxy)
		if err != nil || p.na.IP.String() == proxyHost {
			theirNA = &wire.NetAddress{Timestamp: time.Now(), IP: net.IP{0, 0, 0, 0}}
		}
	}

	ourNA := p.na
	if p.cfg.BestLocalAddress != nil {
		ourNA = p.cfg.BestLocalAddress(p.na)
	}

	nonce, err := wire.RandomUint64()
	if err != nil {
		return nil, err
	}
	sentNonces.Add(nonce)

	msg := wire.NewMsgVersion(ourNA, theirNA, nonce, blockNum)
	msg.Services = p.cfg.Services
	msg.ProtocolVersion = int32(p.ProtocolVersion())
	msg.DisableRelayTx = p.cfg.DisableRelayTx
	if p.cfg.UserAgentName != "" {
		msg.UserAgent = fmt.Sprintf("/%s:%s/", p.cfg.UserAgentName, p.cfg.UserAgentVersion)
	}
	return msg, nil
}

// PushAddrMsg sends an addr message carrying up to wire.MaxAddrPerMsg of
// the supplied addresses, randomly sampled if there are more than that.
func (p *Peer) PushAddrMsg(addresses []*wire.NetAddress) ([]*wire.NetAddress, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	msg := wire.NewMsgAddr()
	list := make([]*wire.NetAddress, len(addresses))
	copy(list, addresses)
	if len(list) > wire.MaxAddrPerMsg {
		for i := range list {
			j := rand.Intn(i + 1)
			list[i], list[j] = list[j], list[i]
		}
		list = list[:wire.MaxAddrPerMsg]
	}
	for _, na := range list {
		if err := msg.AddAddress(na); err != nil {
			return nil, err
		}
	}
	p.QueueMessage(msg, nil)
	return list, nil
}

// PushGetBlocksMsg sends a getblocks request for locator, ignoring a
// back-to-back duplicate of the same (begin, stop) pair.
func (p *Peer) PushGetBlocksMsg(locator BlockLocator, stopHash *chainhash.Hash) error {
	var begin *chainhash.Hash
	if len(locator) > 0 {
		begin = locator[0]
	}

	p.prevGetBlocksMtx.Lock()
	dup := p.prevGetBlocksStop != nil && p.prevGetBlocksBegin != nil &&
		begin != nil && stopHash.IsEqual(p.prevGetBlocksStop) &&
		begin.IsEqual(p.prevGetBlocksBegin)
	p.prevGetBlocksMtx.Unlock()
	if dup {
		return nil
	}

	msg := wire.NewMsgGetBlocks(stopHash)
	for _, hash := range locator {
		if err := msg.AddBlockLocatorHash(hash); err != nil {
			return err
		}
	}
	p.QueueMessage(msg, nil)

	p.prevGetBlocksMtx.Lock()
	p.prevGetBlocksBegin, p.prevGetBlocksStop = begin, stopHash
	p.prevGetBlocksMtx.Unlock()
	return nil
}

// PushGetHeadersMsg sends a getheaders request for locator, ignoring a
// back-to-back duplicate.
func (p *Peer) PushGetHeadersMsg(locator BlockLocator, stopHash *chainhash.Hash) error {
	var begin *chainhash.Hash
	if len(locator) > 0 {
		begin = locator[0]
	}

	p.prevGetHdrsMtx.Lock()
	dup := p.prevGetHdrsStop != nil && p.prevGetHdrsBegin != nil &&
		begin != nil && stopHash.IsEqual(p.prevGetHdrsStop) &&
		begin.IsEqual(p.prevGetHdrsBegin)
	p.prevGetHdrsMtx.Unlock()
	if dup {
		return nil
	}

	msg := wire.NewMsgGetHeaders(stopHash)
	for _, hash := range locator {
		if err := msg.AddBlockLocatorHash(hash); err != nil {
			return err
		}
	}
	p.QueueMessage(msg, nil)

	p.prevGetHdrsMtx.Lock()
	p.prevGetHdrsBegin, p.prevGetHdrsStop = begin, stopHash
	p.prevGetHdrsMtx.Unlock()
	return nil
}

// PushRejectMsg sends a reject for command, optionally blocking until it
// is actually written when wait is true.
func (p *Peer) PushRejectMsg(command string, code wire.RejectCode, reason string, hash *chainhash.Hash, wait bool) {
	msg := wire.NewMsgReject(command, code, reason)
	if command == wire.CmdTx || command == wire.CmdBlock {
		if hash != nil {
			msg.Hash = *hash
		}
	}
	if !wait {
		p.QueueMessage(msg, nil)
		return
	}
	done := make(chan struct{}, 1)
	p.QueueMessage(msg, done)
	<-done
}

// handleVersionMsg processes an inbound version message: self-connect
// detection, minimum-version enforcement, and recording the negotiated
// fields.
func (p *Peer) handleVersionMsg(msg *wire.MsgVersion) error {
	p.handshakeMtx.Lock()
	p.version = msg
	p.handshakeMtx.Unlock()

	if !allowSelfConns && sentNonces.Contains(msg.Nonce) {
		return errors.New("disconnecting peer connected to self")
	}

	if uint32(msg.ProtocolVersion) < wire.MinPeerProtoVersion {
		reason := fmt.Sprintf("protocol version must be %d or greater", wire.MinPeerProtoVersion)
		p.PushRejectMsg(msg.Command(), wire.RejectObsolete, reason, nil, true)
		return errors.New(reason)
	}

	p.handshakeMtx.Lock()
	p.startingHeight = msg.LastBlock
	p.timeOffset = msg.Timestamp.Unix() - time.Now().Unix()
	negotiated := uint32(msg.ProtocolVersion)
	if negotiated > p.protocolVersion {
		negotiated = p.protocolVersion
	}
	p.protocolVersion = negotiated
	p.services = msg.Services
	p.userAgent = msg.UserAgent
	p.relayTx = !msg.DisableRelayTx
	p.handshakeMtx.Unlock()

	p.statsMtx.Lock()
	p.lastBlock = msg.LastBlock
	p.statsMtx.Unlock()

	p.id = atomic.AddInt32(&nodeCount, 1)
	p.setHandshakeState(StateVersionReceived)
	return nil
}

// isValidBIP0111 reports whether the peer may legally send a bloom-filter
// command, disconnecting a modern peer that shouldn't be sending one.
func (p *Peer) isValidBIP0111(cmd string) bool {
	if p.Services()&wire.SFNodeBloom != wire.SFNodeBloom {
		if p.ProtocolVersion() >= wire.BIP0111Version {
			p.Disconnect()
		}
		return false
	}
	return true
}

func (p *Peer) handlePingMsg(msg *wire.MsgPing) {
	if p.ProtocolVersion() > wire.BIP0031Version {
		p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
	}
}

func (p *Peer) handlePongMsg(msg *wire.MsgPong) {
	p.statsMtx.Lock()
	defer p.statsMtx.Unlock()
	if p.ProtocolVersion() <= wire.BIP0031Version || p.lastPingNonce == 0 {
		return
	}
	if msg.Nonce != p.lastPingNonce {
		log.Debugf("pong nonce mismatch from %s: sent %d, got %d", p, p.lastPingNonce, msg.Nonce)
		return
	}
	p.lastPingMicros = time.Since(p.lastPingTime).Nanoseconds() / 1000
	p.lastPingNonce = 0
}

// readMessage reads and logs the next message from the wire.
func (p *Peer) readMessage() (wire.Message, []byte, error) {
	msg, buf, err := wire.ReadMessage(p.conn, p.ProtocolVersion(), p.cfg.ChainParams.Net)

	p.statsMtx.Lock()
	p.bytesReceived += uint64(len(buf))
	p.statsMtx.Unlock()
	if p.cfg.Listeners.OnRead != nil {
		p.cfg.Listeners.OnRead(p, len(buf), msg, err)
	}
	if err != nil {
		return nil, nil, err
	}

	log.Debugf("received %v from %s", msg.Command(), p)
	log.Tracef("%v", spew.Sdump(msg))
	return msg, buf, nil
}

// writeMessage encodes and writes msg to the wire, logging it first.
func (p *Peer) writeMessage(msg wire.Message) error {
	log.Debugf("sending %v to %s", msg.Command(), p)
	log.Tracef("%v", spew.Sdump(msg))

	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, msg, p.ProtocolVersion(), p.cfg.ChainParams.Net); err != nil {
		return err
	}
	n, err := p.conn.Write(buf.Bytes())
	p.statsMtx.Lock()
	p.bytesSent += uint64(n)
	p.statsMtx.Unlock()
	if p.cfg.Listeners.OnWrite != nil {
		p.cfg.Listeners.OnWrite(p, n, msg, err)
	}
	return err
}

func (p *Peer) shouldHandleReadError(err error) bool {
	if !p.Connected() {
		return false
	}
	if err == io.EOF {
		return false
	}
	if opErr, ok := err.(*net.OpError); ok && !opErr.Temporary() {
		return false
	}
	return true
}

// maybeAddDeadline arms a response timer for commands that expect a
// specific reply, so a silent peer gets disconnected instead of stalling
// the sync forever.
func (p *Peer) maybeAddDeadline(msg wire.Message) {
	timeout := stallResponseTimeout
	responseCmd := ""
	switch msg.Command() {
	case wire.CmdVersion, wire.CmdMemPool, wire.CmdGetBlocks:
		responseCmd = wire.CmdInv
	case wire.CmdGetData:
		responseCmd = cmdData
	case wire.CmdGetHeaders:
		timeout *= 3
		responseCmd = wire.CmdHeaders
	}
	if responseCmd == "" {
		return
	}

	p.responseDeadlinesMtx.Lock()
	if _, ok := p.responseDeadlines[responseCmd]; !ok {
		t := pausableTimerAfterFunc(timeout, func() {
			log.Debugf("timeout waiting for %v from %s", responseCmd, p)
			p.Disconnect()
		})
		p.responseDeadlines[responseCmd] = t
	}
	p.responseDeadlinesMtx.Unlock()
}

func (p *Peer) maybeRemoveDeadline(msg wire.Message) bool {
	responseCmd := msg.Command()
	switch msg.Command() {
	case wire.CmdBlock, wire.CmdTx, wire.CmdNotFound:
		responseCmd = cmdData
	}
	success := true
	p.responseDeadlinesMtx.Lock()
	if t, ok := p.responseDeadlines[responseCmd]; ok {
		success = t.Stop()
		delete(p.responseDeadlines, responseCmd)
	}
	p.responseDeadlinesMtx.Unlock()
	return success
}

func (p *Peer) pauseDeadlines() bool {
	success := true
	p.responseDeadlinesMtx.Lock()
	for _, t := range p.responseDeadlines {
		if !t.Pause() {
			success = false
		}
	}
	p.responseDeadlinesMtx.Unlock()
	return success
}

func (p *Peer) unpauseDeadlines() {
	p.responseDeadlinesMtx.Lock()
	for _, t := range p.responseDeadlines {
		t.Unpause()
	}
	p.responseDeadlinesMtx.Unlock()
}

func (p *Peer) readHandler() {
	defer p.disconnectWaitGroup.Done()

	for {
		read := make(chan readMsg)
		go func() {
			msg, buf, err := p.readMessage()
			read <- readMsg{msg, buf, err}
			close(read)
		}()

		select {
		case <-p.disconnect:
			return
		case rm := <-read:
			if err := p.handleReadMsg(rm); err != nil {
				p.Disconnect()
			}
		case <-time.After(idleTimeout):
			log.Warnf("peer %s idle for %s, disconnecting", p, idleTimeout)
			p.Disconnect()
		}
	}
}

func (p *Peer) handleReadMsg(rm readMsg) error {
	if rm.err != nil {
		if rm.err == wire.ErrChecksumMismatch {
			// A bad checksum is a transport-level corruption, not a
			// reason to tear down an otherwise well-behaved
			// connection. OnRead has already seen the error; the
			// dispatcher records no misbehavior for it.
			log.Debugf("ignoring %s: bad checksum", p)
			return nil
		}
		if p.shouldHandleReadError(rm.err) {
			errStr := fmt.Sprintf("cannot read message from %s: %v", p, rm.err)
			log.Errorf(errStr)
			p.PushRejectMsg("malformed", wire.RejectMalformed, errStr, nil, true)
		}
		return rm.err
	}

	p.statsMtx.Lock()
	p.lastRecv = time.Now()
	p.statsMtx.Unlock()

	if !p.maybeRemoveDeadline(rm.msg) {
		return errors.New("deadline reached")
	}
	if !p.pauseDeadlines() {
		return errors.New("deadline reached")
	}
	defer p.unpauseDeadlines()

	switch msg := rm.msg.(type) {
	case *wire.MsgVersion:
		p.PushRejectMsg(msg.Command(), wire.RejectDuplicate, "duplicate version message", nil, true)
		return errors.New("version already received")
	case *wire.MsgVerAck:
		p.PushRejectMsg(msg.Command(), wire.RejectDuplicate, "duplicate verack message", nil, true)
		return errors.New("verack already received")
	case *wire.MsgGetAddr:
		p.markActivity()
		if l := p.cfg.Listeners.OnGetAddr; l != nil {
			l(p, msg)
		}
	case *wire.MsgAddr:
		p.markActivity()
		if l := p.cfg.Listeners.OnAddr; l != nil {
			l(p, msg)
		}
	case *wire.MsgPing:
		p.markActivity()
		p.handlePingMsg(msg)
		if l := p.cfg.Listeners.OnPing; l != nil {
			l(p, msg)
		}
	case *wire.MsgPong:
		p.handlePongMsg(msg)
		if l := p.cfg.Listeners.OnPong; l != nil {
			l(p, msg)
		}
	case *wire.MsgMemPool:
		p.markActivity()
		if l := p.cfg.Listeners.OnMemPool; l != nil {
			l(p, msg)
		}
	case *wire.MsgTx:
		p.markActivity()
		if l := p.cfg.Listeners.OnTx; l != nil {
			l(p, msg)
		}
	case *wire.MsgBlock:
		p.markActivity()
		if l := p.cfg.Listeners.OnBlock; l != nil {
			l(p, msg, rm.buf)
		}
	case *wire.MsgInv:
		p.markActivity()
		if l := p.cfg.Listeners.OnInv; l != nil {
			l(p, msg)
		}
	case *wire.MsgHeaders:
		p.markActivity()
		if l := p.cfg.Listeners.OnHeaders; l != nil {
			l(p, msg)
		}
	case *wire.MsgNotFound:
		if l := p.cfg.Listeners.OnNotFound; l != nil {
			l(p, msg)
		}
	case *wire.MsgGetData:
		p.markActivity()
		if l := p.cfg.Listeners.OnGetData; l != nil {
			l(p, msg)
		}
	case *wire.MsgGetBlocks:
		p.markActivity()
		if l := p.cfg.Listeners.OnGetBlocks; l != nil {
			l(p, msg)
		}
	case *wire.MsgGetHeaders:
		p.markActivity()
		if l := p.cfg.Listeners.OnGetHeaders; l != nil {
			l(p, msg)
		}
	case *wire.MsgFilterAdd:
		if p.isValidBIP0111(msg.Command()) {
			if l := p.cfg.Listeners.OnFilterAdd; l != nil {
				l(p, msg)
			}
		}
	case *wire.MsgFilterClear:
		if p.isValidBIP0111(msg.Command()) {
			if l := p.cfg.Listeners.OnFilterClear; l != nil {
				l(p, msg)
			}
		}
	case *wire.MsgFilterLoad:
		if p.isValidBIP0111(msg.Command()) {
			if l := p.cfg.Listeners.OnFilterLoad; l != nil {
				l(p, msg)
			}
		}
	case *wire.MsgFilterSizeXthin:
		if l := p.cfg.Listeners.OnFilterSizeXthin; l != nil {
			l(p, msg)
		}
	case *wire.MsgMerkleBlock:
		if l := p.cfg.Listeners.OnMerkleBlock; l != nil {
			l(p, msg)
		}
	case *wire.MsgSendHeaders:
		p.SetPrefersHeaders(true)
		if l := p.cfg.Listeners.OnSendHeaders; l != nil {
			l(p, msg)
		}
	case *wire.MsgSendCmpct:
		p.SetSupportsCompactBlocks(msg.Version == 1)
		if l := p.cfg.Listeners.OnSendCmpct; l != nil {
			l(p, msg)
		}
	case *wire.MsgBUVersion:
		p.buListenPort = msg.AddrMeListenPort
		if l := p.cfg.Listeners.OnBUVersion; l != nil {
			l(p, msg)
		}
	case *wire.MsgBUVerAck:
		p.setBUHandshakeState(BUStateVerAckReceived)
		if l := p.cfg.Listeners.OnBUVerAck; l != nil {
			l(p, msg)
		}
	case *wire.MsgReject:
		if l := p.cfg.Listeners.OnReject; l != nil {
			l(p, msg)
		}
	default:
		// Unknown command: ignored for forward compatibility.
	}
	return nil
}

func (p *Peer) markActivity() {
	p.statsMtx.Lock()
	p.lastActivity = time.Now()
	p.statsMtx.Unlock()
}

func (p *Peer) writeMsgQueueHandler() {
	defer p.disconnectWaitGroup.Done()

	pending := list.New()
	for {
		for {
			elem := pending.Front()
			if elem == nil {
				break
			}
			select {
			case <-p.disconnect:
				return
			case p.write <- elem.Value.(writeMsg):
				pending.Remove(elem)
			default:
				goto drained
			}
		}
	drained:

		select {
		case <-p.disconnect:
			return
		case wm := <-p.writeMsgQueue:
			pending.PushBack(wm)
		}
	}
}

func (p *Peer) writeInvVectQueueHandler() {
	defer p.disconnectWaitGroup.Done()

	ticker := time.NewTicker(trickleTimeout)
	defer ticker.Stop()

	var pending []*wire.InvVect
	for {
		select {
		case <-p.disconnect:
			return
		case iv := <-p.writeInvVectQueue:
			pending = append(pending, iv)
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			invMsg := wire.NewMsgInv()
			for _, iv := range pending {
				if p.KnowsInventory(iv) {
					continue
				}
				_ = invMsg.AddInvVect(iv)
				if len(invMsg.InvList) >= maxInvTrickleSize {
					p.QueueMessage(invMsg, nil)
					invMsg = wire.NewMsgInv()
				}
				p.AddKnownInventory(iv)
			}
			pending = nil
			if len(invMsg.InvList) > 0 {
				p.QueueMessage(invMsg, nil)
			}
		}
	}
}

func (p *Peer) writeHandler() {
	defer p.disconnectWaitGroup.Done()

	for {
		select {
		case <-p.disconnect:
			return
		case wm := <-p.write:
			atomic.AddInt32(&p.sendQueueCount, -1)
			if ping, ok := wm.msg.(*wire.MsgPing); ok && p.ProtocolVersion() > wire.BIP0031Version {
				p.statsMtx.Lock()
				p.lastPingNonce = ping.Nonce
				p.lastPingTime = time.Now()
				p.statsMtx.Unlock()
			}

			err := p.writeMessage(wm.msg)
			if wm.done != nil {
				close(wm.done)
			}
			if err != nil {
				if p.Connected() {
					log.Errorf("failed to send message to %s: %v", p, err)
				}
				p.Disconnect()
				return
			}
			p.maybeAddDeadline(wm.msg)
		}
	}
}

func (p *Peer) pingTicker() {
	defer p.disconnectWaitGroup.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.disconnect:
			return
		case <-ticker.C:
			nonce, err := wire.RandomUint64()
			if err != nil {
				continue
			}
			p.QueueMessage(wire.NewMsgPing(nonce), nil)
		}
	}
}

// QueueMessage adds msg to the peer's send queue. If done is non-nil it
// is closed once the message has actually been written (or immediately,
// if the peer is already disconnected).
func (p *Peer) QueueMessage(msg wire.Message, done chan<- struct{}) {
	if !p.Connected() && p.HandshakeState() != StateVersionReceived && p.HandshakeState() != StateVerAckReceived {
		if done != nil {
			go func() { done <- struct{}{} }()
		}
		return
	}
	atomic.AddInt32(&p.sendQueueCount, 1)
	p.writeMsgQueue <- writeMsg{msg, done}
}

// QueueInventory adds iv to the trickled inventory send queue, skipping
// items the peer is already known to have.
func (p *Peer) QueueInventory(iv *wire.InvVect) {
	if p.KnowsInventory(iv) || !p.Connected() {
		return
	}
	p.writeInvVectQueue <- iv
}

// Disconnect closes the connection and stops every goroutine owned by
// this peer. Safe to call more than once or concurrently.
func (p *Peer) Disconnect() error {
	p.disconnectOnce.Do(func() { close(p.disconnect) })

	p.responseDeadlinesMtx.Lock()
	for cmd, t := range p.responseDeadlines {
		t.Stop()
		delete(p.responseDeadlines, cmd)
	}
	p.responseDeadlinesMtx.Unlock()

	return p.conn.Close()
}

// WaitForDisconnect blocks until every goroutine owned by this peer has
// exited.
func (p *Peer) WaitForDisconnect() {
	p.disconnectWaitGroup.Wait()
}

func newPeerBase(cfg *Config, inbound bool) *Peer {
	protocolVersion := MaxProtocolVersion
	if cfg.ProtocolVersion != 0 {
		protocolVersion = cfg.ProtocolVersion
	}
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.TestNet3Params
	}

	return &Peer{
		inbound:         inbound,
		cfg:             *cfg,
		protocolVersion: protocolVersion,
		whitelisted:     cfg.Whitelisted,

		misbehavior:  banscore.NewMisbehaviorScore(),
		xthinLimiter: banscore.NewRateCounter(int64(xthinRateHalflife.Seconds()), int64(xthinRateHalflife.Seconds()*30), xthinRateThreshold),

		knownInventory: lru.NewCache(maxKnownInventory),
		knownAddrs:     lru.NewCache(maxKnownAddrs),
		getData:        list.New(),

		disconnect: make(chan struct{}),

		write:             make(chan writeMsg),
		writeMsgQueue:     make(chan writeMsg),
		writeInvVectQueue: make(chan *wire.InvVect),

		responseDeadlines: make(map[string]*pausableTimer),
	}
}

func (p *Peer) negotiateInboundVersion() error {
	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}
	verMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	if err := p.handleVersionMsg(verMsg); err != nil {
		return err
	}
	if l := p.cfg.Listeners.OnVersion; l != nil {
		l(p, verMsg)
	}

	outMsg, err := p.localMsgVersion()
	if err != nil {
		return err
	}
	if err := p.writeMessage(outMsg); err != nil {
		return err
	}

	msg, _, err = p.readMessage()
	if err != nil {
		return err
	}
	verAck, ok := msg.(*wire.MsgVerAck)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	p.setHandshakeState(StateVerAckReceived)
	if l := p.cfg.Listeners.OnVerAck; l != nil {
		l(p, verAck)
	}

	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}
	p.setHandshakeState(StateConnected)
	p.statsMtx.Lock()
	p.lastActivity = time.Now()
	p.statsMtx.Unlock()
	return nil
}

func (p *Peer) negotiateOutboundVersion() error {
	outMsg, err := p.localMsgVersion()
	if err != nil {
		return err
	}
	if err := p.writeMessage(outMsg); err != nil {
		return err
	}

	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}
	verMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	if err := p.handleVersionMsg(verMsg); err != nil {
		return err
	}
	if l := p.cfg.Listeners.OnVersion; l != nil {
		l(p, verMsg)
	}

	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}

	msg, _, err = p.readMessage()
	if err != nil {
		return err
	}
	verAck, ok := msg.(*wire.MsgVerAck)
	if !ok {
		return fmt.Errorf("unexpected message %T", msg)
	}
	p.setHandshakeState(StateVerAckReceived)
	if l := p.cfg.Listeners.OnVerAck; l != nil {
		l(p, verAck)
	}
	p.setHandshakeState(StateConnected)
	p.statsMtx.Lock()
	p.lastActivity = time.Now()
	p.statsMtx.Unlock()
	return nil
}

// NewInboundPeer negotiates the handshake over an already-accepted
// connection and, on success, starts its read/write goroutines.
func NewInboundPeer(cfg *Config, conn net.Conn) (*Peer, error) {
	p := newPeerBase(cfg, true)
	p.addr = conn.RemoteAddr().String()

	na, err := newNetAddress(conn.RemoteAddr(), p.cfg.Services)
	if err != nil {
		return nil, err
	}
	p.na = na

	if err := startPeer(p, conn, p.negotiateInboundVersion); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// NewOutboundPeer dials and negotiates the handshake for an outbound
// connection and, on success, starts its read/write goroutines.
func NewOutboundPeer(cfg *Config, conn net.Conn, addr string) (*Peer, error) {
	p := newPeerBase(cfg, false)
	p.addr = addr

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}

	if cfg.HostToNetAddress != nil {
		na, err := cfg.HostToNetAddress(host, uint16(port), cfg.Services)
		if err != nil {
			return nil, err
		}
		p.na = na
	} else {
		p.na = wire.NewNetAddressIPPort(net.ParseIP(host), uint16(port), cfg.Services)
	}

	if err := startPeer(p, conn, p.negotiateOutboundVersion); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func startPeer(p *Peer, conn net.Conn, negotiate func() error) error {
	p.conn = conn
	p.timeConnected = time.Now()

	errc := make(chan error, 1)
	go func() { errc <- negotiate() }()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-time.After(negotiateTimeout):
		return errors.New("protocol negotiation timeout")
	}

	p.disconnectWaitGroup.Add(5)
	go p.writeHandler()
	go p.writeMsgQueueHandler()
	go p.writeInvVectQueueHandler()
	go p.readHandler()
	go p.pingTicker()
	return nil
}
