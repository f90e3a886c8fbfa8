// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"encoding/binary"
	"hash/fnv"
	"time"

	"github.com/btcrelay/peerd/addrmgr"
	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/bloom"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/netsync"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

// Tunables named bit-exact in spec.md §6.
const (
	maxAddrToRelay        = 10
	oneWeek               = 7 * 24 * time.Hour
	oneMonth              = 30 * 24 * time.Hour
	envelopeBanDuration   = 4 * time.Hour
	inventoryFloodPenalty = 50
)

// MempoolView is the read-only seam onto the external mempool the
// dispatcher consults for `mempool` replies and `getdata(MSG_TX)`
// service once RelayMap has nothing.
type MempoolView interface {
	QueryHashes() []chainhash.Hash
	FetchTransaction(hash chainhash.Hash) (*wire.MsgTx, bool)
}

// TxAdmitter is the external admission queue a `tx` message feeds; actual
// mempool policy (fee, size, conflict) is out of scope here.
type TxAdmitter interface {
	EnqueueTxForAdmission(tx *wire.MsgTx, from *peer.Peer)
}

// AddrPersister is the subset of addrmgr.Manager the dispatcher drives.
// A *addrmgr.Manager satisfies it directly.
type AddrPersister interface {
	AddAddresses(addrs []*wire.NetAddress, srcAddr *wire.NetAddress)
	GetAddresses(n int) []*wire.NetAddress
	Attempt(na *wire.NetAddress)
	Good(na *wire.NetAddress)
}

// BlockRelaySink is the expedited-forward path: a newly received block,
// while still nearly synced, is handed here before validation finishes.
type BlockRelaySink interface {
	Forward(block *wire.MsgBlock, from *peer.Peer)
}

// ThinBlockHandler serves the compact-block-family codecs (xthin,
// graphene) whose wire bodies are out of scope here; the dispatcher only
// gates the request through to whichever handler the network layer
// supplies.
type ThinBlockHandler interface {
	ServeThinBlock(p *peer.Peer, invType wire.InvType, hash chainhash.Hash) bool

	// CheckDownloadTimeout reports whether p has an in-flight compact
	// block request that has exceeded its retry window, the gate
	// PeerSender's step 4 disconnects a non-whitelisted peer for.
	CheckDownloadTimeout(p *peer.Peer) bool
}

// GetDataDrainer continues serving a peer's queued getdata backlog
// across dispatcher/sender ticks. *Dispatcher satisfies it.
type GetDataDrainer interface {
	ServeGetData(p *peer.Peer, max int)
}

// DispatcherConfig holds the operability knobs MessageDispatcher needs
// beyond its collaborators.
type DispatcherConfig struct {
	// BlocksOnly suppresses transaction relay entirely, per spec.md
	// §4.1's `inv` handler ("unless in blocks-only mode").
	BlocksOnly bool

	// SendBufferCap approximates spec.md §5's SendBufferSize() as a
	// count of queued/in-flight messages rather than bytes, per Peer's
	// SendQueueSize.
	SendBufferCap int32

	// BanDuration is how long an envelope-level magic mismatch bans the
	// offending address for.
	BanDuration time.Duration

	// MaxThinBloomSize is the maximum xthin bloom filter size this node
	// is willing to build, advertised via filtersizextn right after
	// verack to every peer whose services include SFNodeXthin.
	MaxThinBloomSize uint32
}

// Dispatcher is spec.md §4.1's MessageDispatcher: it owns every
// per-command handler and is wired into a Peer's MessageListeners at
// construction time. It never blocks on network I/O; every handler either
// mutates in-memory state or queues an outbound message on the same
// peer's write goroutine.
type Dispatcher struct {
	cfg DispatcherConfig

	chain       *Chain
	reqMgr      *netsync.RequestManager
	headerSync  *netsync.HeaderSync
	states      *NodeStateMap
	misbehavior *MisbehaviorTracker
	relay       *RelayMap
	banner      Banner
	addrs       AddrPersister
	mempool     MempoolView
	txAdmitter  TxAdmitter
	blocks      BlockReader
	relaySink   BlockRelaySink
	thin        ThinBlockHandler
	progress    *blockProgressLogger
}

// NewDispatcher returns a Dispatcher wiring the given collaborators
// together. mempool, txAdmitter, relaySink and thin may be nil; the
// corresponding handlers then skip that step (or report the item not
// found) instead of panicking, since none of them are needed for
// header-only operation.
func NewDispatcher(cfg DispatcherConfig, chain *Chain, reqMgr *netsync.RequestManager,
	headerSync *netsync.HeaderSync, states *NodeStateMap, misbehavior *MisbehaviorTracker,
	relay *RelayMap, banner Banner, addrs AddrPersister, mempool MempoolView,
	txAdmitter TxAdmitter, blocks BlockReader, relaySink BlockRelaySink, thin ThinBlockHandler) *Dispatcher {

	return &Dispatcher{
		cfg:         cfg,
		chain:       chain,
		reqMgr:      reqMgr,
		headerSync:  headerSync,
		states:      states,
		misbehavior: misbehavior,
		relay:       relay,
		banner:      banner,
		addrs:       addrs,
		mempool:     mempool,
		txAdmitter:  txAdmitter,
		blocks:      blocks,
		relaySink:   relaySink,
		thin:        thin,
		progress:    newBlockProgressLogger("Processed", log),
	}
}

// Listeners builds the peer.MessageListeners set that wires every
// per-command handler below into a Peer's read goroutine.
func (d *Dispatcher) Listeners() peer.MessageListeners {
	return peer.MessageListeners{
		OnRead:            d.onRead,
		OnVerAck:          d.onVerAck,
		OnAddr:            d.onAddr,
		OnInv:             d.onInv,
		OnGetData:         d.onGetData,
		OnGetBlocks:       d.onGetBlocks,
		OnGetHeaders:      d.onGetHeaders,
		OnTx:              d.onTx,
		OnHeaders:         d.onHeaders,
		OnBlock:           d.onBlock,
		OnGetAddr:         d.onGetAddr,
		OnMemPool:         d.onMemPool,
		OnFilterLoad:      d.onFilterLoad,
		OnFilterAdd:       d.onFilterAdd,
		OnFilterClear:     d.onFilterClear,
		OnFilterSizeXthin: d.onFilterSizeXthin,
		OnReject:          d.onReject,
	}
}

// InitializeNode registers p as live and marks it a preferred-download
// candidate if it looks like a full, non-witness-light node. Called once
// a connection reaches peer.StateConnected.
func (d *Dispatcher) InitializeNode(p *peer.Peer) {
	d.states.InitializeNode(p)
	if p.Services()&wire.SFNodeNetwork == wire.SFNodeNetwork {
		d.reqMgr.SetPreferredDownload(p, true)
	}
}

// FinalizeNode releases every resource a disconnecting peer held.
func (d *Dispatcher) FinalizeNode(p *peer.Peer) {
	d.reqMgr.FinalizeNode(p)
	d.states.FinalizeNode(p)
}

// onRead is invoked for every inbound message, well-formed or not, and
// is the DoS gate spec.md §4.1 places ahead of dispatch: a network-magic
// mismatch on the framed envelope earns an immediate ban regardless of
// accumulated misbehavior score, since it means the peer is not speaking
// our network at all. Whitelisted peers are still exempt, as in
// MisbehaviorTracker.Ban.
func (d *Dispatcher) onRead(p *peer.Peer, n int, msg wire.Message, err error) {
	if err == nil {
		return
	}
	if _, ok := err.(*wire.ErrUnknownMagic); ok {
		d.misbehavior.Ban(p, d.cfg.BanDuration, "network magic mismatch")
	}
}

// onVerAck implements spec.md §4.1's verack contract and SPEC_FULL.md §D's
// fixed capability-announcement ordering: sendheaders, then our max bloom
// size if the remote is thin-capable (advertises SFNodeXthin), then
// BUVERSION if its protocol version clears the extension threshold.
func (d *Dispatcher) onVerAck(p *peer.Peer, msg *wire.MsgVerAck) {
	d.addrs.Good(p.NA())

	if p.ProtocolVersion() >= wire.SendHeadersVersion {
		p.QueueMessage(wire.NewMsgSendHeaders(), nil)
	}
	if d.cfg.MaxThinBloomSize > 0 && p.Services()&wire.SFNodeXthin == wire.SFNodeXthin {
		p.QueueMessage(wire.NewMsgFilterSizeXthin(d.cfg.MaxThinBloomSize), nil)
	}
	if p.ProtocolVersion() >= wire.BUVersion {
		p.QueueMessage(wire.NewMsgBUVersion(0), nil)
	}
}

// onAddr implements spec.md §4.1's `addr` handler: cap already enforced
// at decode, update addrman with the routable subset, and relay the first
// maxAddrToRelay of them, in message order rather than a random sample,
// to a deterministic subset of our own peers so a single address does
// not fan out to the whole network from one relayer.
func (d *Dispatcher) onAddr(p *peer.Peer, msg *wire.MsgAddr) {
	if len(msg.AddrList) == 0 {
		return
	}

	now := time.Now()
	routable := make([]*wire.NetAddress, 0, len(msg.AddrList))
	for _, na := range msg.AddrList {
		if na.Timestamp.Before(now.Add(-oneWeek)) {
			continue
		}
		if !addrmgr.Routable(na) {
			continue
		}
		routable = append(routable, na)
	}
	if len(routable) == 0 {
		return
	}

	d.addrs.AddAddresses(routable, p.NA())

	relayed := 0
	for _, na := range routable {
		if relayed >= maxAddrToRelay {
			break
		}
		for _, dest := range d.states.Peers() {
			if dest.ID() == p.ID() {
				continue
			}
			if !relaySalt(dest.ID(), na, now) {
				continue
			}
			dest.QueuePendingAddr(na)
		}
		relayed++
	}
}

// relaySalt deterministically decides, for a given destination peer and
// address, whether today's rotating salt selects that peer as one of the
// address's relay targets. Grounded on the teacher's RelayAddress salt
// construction (server.go), reimplemented with hash/fnv rather than the
// teacher's siphash since this module carries no siphash dependency.
func relaySalt(destID int32, na *wire.NetAddress, now time.Time) bool {
	dayBucket := now.Unix() / int64(24*time.Hour/time.Second)

	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(dayBucket))
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:4], uint32(destID))
	h.Write(buf[:4])
	h.Write(na.IP)
	binary.LittleEndian.PutUint16(buf[:2], na.Port)
	h.Write(buf[:2])

	return h.Sum64()%2 == 0
}

// onInv implements spec.md §4.1's `inv` handler.
func (d *Dispatcher) onInv(p *peer.Peer, msg *wire.MsgInv) {
	if len(msg.InvList) == 0 {
		d.misbehavior.Misbehaving(p, 20, "empty inv")
		return
	}
	if p.SendQueueSize() > 2*d.cfg.SendBufferCap {
		d.misbehavior.Misbehaving(p, inventoryFloodPenalty, "inv flood while send buffer saturated")
	}

	for _, iv := range msg.InvList {
		p.AddKnownInventory(iv)

		switch iv.Type {
		case wire.InvTypeBlock:
			hash := iv.Hash
			p.UpdateLastAnnouncedBlock(&hash)
			if _, ok := d.chain.Index().Lookup(&hash); ok {
				continue
			}
			if d.chain.IsInitialBlockDownload() {
				continue
			}
			locator := d.chain.Locator(d.chain.Tip())
			_ = p.PushGetHeadersMsg(locator, &hash)

		case wire.InvTypeTx:
			if d.cfg.BlocksOnly || d.chain.IsInitialBlockDownload() {
				continue
			}
			ivCopy := iv
			d.reqMgr.AskFor(ivCopy, p)
		}
	}
}

// onGetData implements spec.md §4.1's `getdata` handler. Empty is a
// protocol violation; everything else is queued on the peer for
// PeerSender (and repeated dispatcher ticks) to drain a batch at a time,
// the concrete stand-in for "yield after each block-class item" since
// listeners here run synchronously on the peer's read goroutine.
func (d *Dispatcher) onGetData(p *peer.Peer, msg *wire.MsgGetData) {
	if len(msg.InvList) == 0 {
		d.misbehavior.Misbehaving(p, 20, "empty getdata")
		return
	}
	p.QueueGetData(msg.InvList)
	d.ServeGetData(p, maxGetDataPerTick)
}

// maxGetDataPerTick bounds how many queued getdata items a single serve
// pass hands to one peer, so a single huge getdata batch is spread
// across several dispatcher/sender ticks instead of blocking this read
// goroutine for the whole request.
const maxGetDataPerTick = 64

// ServeGetData drains up to max items from p's queued getdata backlog.
// Exported so PeerSender can continue draining a backlog that outlived
// the tick that first queued it.
func (d *Dispatcher) ServeGetData(p *peer.Peer, max int) {
	var notFound []*wire.InvVect

	for i := 0; i < max; i++ {
		if p.SendQueueSize() >= d.cfg.SendBufferCap {
			break
		}
		iv, ok := p.PopGetData()
		if !ok {
			break
		}

		switch iv.Type {
		case wire.InvTypeBlock, wire.InvTypeFilteredBlock:
			if !d.serveBlockGetData(p, iv) {
				notFound = append(notFound, iv)
			}
		case wire.InvTypeThinBlock, wire.InvTypeGrapheneBlock:
			if d.thin == nil || !d.thin.ServeThinBlock(p, iv.Type, iv.Hash) {
				notFound = append(notFound, iv)
			}
		case wire.InvTypeTx:
			if !d.serveTxGetData(p, iv) {
				notFound = append(notFound, iv)
			}
		}
	}

	if len(notFound) > 0 {
		nf := wire.NewMsgNotFound()
		for _, iv := range notFound {
			_ = nf.AddInvVect(iv)
		}
		p.QueueMessage(nf, nil)
	}
}

// serveBlockGetData serves one MSG_BLOCK or MSG_FILTERED_BLOCK request,
// applying spec.md §4.1's chain-membership, staleness, and bandwidth-cap
// rules. It returns false when the item should be reported not-found
// rather than answered.
func (d *Dispatcher) serveBlockGetData(p *peer.Peer, iv *wire.InvVect) bool {
	ni, ok := d.chain.Index().Lookup(&iv.Hash)
	if !ok {
		return false
	}
	status := d.chain.Index().Status(ni)
	if status&blockindex.StatusHaveData == 0 {
		return false
	}

	onChain := d.chain.Contains(ni)
	if !onChain {
		if status&blockindex.StatusExcessive != 0 {
			return false
		}
		header := d.chain.Index().Header(ni)
		tipWork := d.chain.Index().Work(d.chain.Tip())
		recentEnough := time.Since(header.Timestamp) <= oneMonth
		sufficientWork := d.chain.Index().Work(ni).Cmp(tipWork) >= 0
		if !recentEnough || !sufficientWork {
			return false
		}
	}

	header := d.chain.Index().Header(ni)
	historical := time.Since(header.Timestamp) > oneWeek
	filtered := iv.Type == wire.InvTypeFilteredBlock
	if p.SendQueueSize() >= d.cfg.SendBufferCap && (historical || filtered) && !p.Whitelisted() {
		p.RequestDisconnect()
		return true
	}

	block, ok := d.blocks.FetchBlock(&iv.Hash)
	if !ok {
		return false
	}

	if filtered {
		filter := p.Filter()
		if filter == nil {
			return false
		}
		mb, matched := bloom.NewMerkleBlock(block, filter)
		p.QueueMessage(mb, nil)
		for _, tx := range matched {
			p.QueueMessage(tx, nil)
		}
	} else {
		p.QueueMessage(block, nil)
	}

	if cont := p.ContinueHash(); cont != nil && *cont == iv.Hash {
		p.SetContinueHash(nil)
		tipHeader := d.chain.Index().Header(d.chain.Tip())
		tipHash := tipHeader.BlockHash()
		inv := wire.NewMsgInv()
		_ = inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &tipHash))
		p.QueueMessage(inv, nil)
	}
	return true
}

// serveTxGetData serves one MSG_TX request from the short-lived relay
// map first, falling back to the mempool.
func (d *Dispatcher) serveTxGetData(p *peer.Peer, iv *wire.InvVect) bool {
	if tx, ok := d.relay.Fetch(iv.Hash); ok {
		p.QueueMessage(tx, nil)
		return true
	}
	if d.mempool == nil {
		return false
	}
	tx, ok := d.mempool.FetchTransaction(iv.Hash)
	if !ok {
		return false
	}
	p.QueueMessage(tx, nil)
	return true
}

// onGetBlocks implements spec.md §4.1's `getblocks` handler.
func (d *Dispatcher) onGetBlocks(p *peer.Peer, msg *wire.MsgGetBlocks) {
	fork, ok := d.chain.FindFork(peer.BlockLocator(msg.BlockLocatorHashes))
	if !ok {
		return
	}

	hashes := d.chain.HashRange(fork, &msg.HashStop, wire.MaxBlockLocatorsPerMsg)
	if len(hashes) == 0 {
		return
	}

	inv := wire.NewMsgInv()
	for _, h := range hashes {
		_ = inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, h))
	}
	if len(hashes) == wire.MaxBlockLocatorsPerMsg {
		p.SetContinueHash(hashes[len(hashes)-1])
	}
	p.QueueMessage(inv, nil)
}

// onGetHeaders implements spec.md §4.1's `getheaders` handler.
func (d *Dispatcher) onGetHeaders(p *peer.Peer, msg *wire.MsgGetHeaders) {
	fork, ok := d.chain.FindFork(peer.BlockLocator(msg.BlockLocatorHashes))
	if !ok {
		return
	}

	headers := d.chain.HeaderRange(fork, &msg.HashStop, maxHeadersResultsLocal)
	if len(headers) == 0 {
		return
	}

	reply := wire.NewMsgHeaders()
	for _, h := range headers {
		_ = reply.AddBlockHeader(h)
	}
	p.QueueMessage(reply, nil)

	lastHash := headers[len(headers)-1].BlockHash()
	if ni, ok := d.chain.Index().Lookup(&lastHash); ok {
		p.SetBestHeaderSent(ni)
	}
}

// maxHeadersResultsLocal mirrors netsync's maxHeadersResults; kept as its
// own constant since a getheaders reply is built here, not in netsync.
const maxHeadersResultsLocal = 2000

// onTx implements spec.md §4.1's `tx` handler: hand the payload to the
// external admission queue and tell RequestManager the fetch it may have
// scheduled is now in flight.
func (d *Dispatcher) onTx(p *peer.Peer, msg *wire.MsgTx) {
	hash := msg.TxHash()
	d.reqMgr.Processing(hash, p)
	d.relay.Store(hash, msg)
	if d.txAdmitter != nil {
		d.txAdmitter.EnqueueTxForAdmission(msg, p)
	}
}

// onHeaders delegates to netsync.HeaderSync per spec.md §4.3.
func (d *Dispatcher) onHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	peers := d.states.Peers()
	if err := d.headerSync.HandleHeaders(p, msg, peers); err != nil {
		log.Debugf("header sync error from %s: %v", p, err)
	}
}

// onBlock implements spec.md §4.1's `block` handler: hand the body to
// the external validator, forward it on the expedited channel first if
// the chain is nearly synced (SPEC_FULL.md §D), and reset the sync-start
// timer regardless of outcome.
func (d *Dispatcher) onBlock(p *peer.Peer, msg *wire.MsgBlock, buf []byte) {
	hash := msg.BlockHash()
	p.SetSyncStarted(false)

	if d.chain.IsChainNearlySyncd() && d.relaySink != nil {
		d.relaySink.Forward(msg, p)
	}

	ni, ok := d.chain.Index().Lookup(&hash)
	if !ok {
		return
	}

	isOrphan, err := d.chain.ProcessBlock(ni, msg)
	if err != nil {
		d.misbehavior.Misbehaving(p, 100, "invalid block")
		return
	}
	if isOrphan {
		return
	}
	d.progress.logBlockAccepted(msg, d.chain.Index().Height(ni))
	d.reqMgr.Processing(hash, p)
}

// onGetAddr implements spec.md §4.1's `getaddr` handler: inbound-only,
// at most once per connection.
func (d *Dispatcher) onGetAddr(p *peer.Peer, msg *wire.MsgGetAddr) {
	if !p.Inbound() {
		return
	}
	if !p.MarkGetAddrReceived() {
		return
	}

	addrs := d.addrs.GetAddresses(wire.MaxAddrPerMsg)
	if len(addrs) == 0 {
		return
	}
	reply := wire.NewMsgAddr()
	for _, na := range addrs {
		if reply.AddAddress(na) != nil {
			break
		}
	}
	p.QueueMessage(reply, nil)
}

// onMemPool implements spec.md §4.1's `mempool` handler.
func (d *Dispatcher) onMemPool(p *peer.Peer, msg *wire.MsgMemPool) {
	if p.SendQueueSize() >= d.cfg.SendBufferCap && !p.Whitelisted() {
		p.RequestDisconnect()
		return
	}
	if d.mempool == nil {
		return
	}

	filter := p.Filter()
	batch := wire.NewMsgInv()
	for _, hash := range d.mempool.QueryHashes() {
		if filter != nil {
			tx, ok := d.mempool.FetchTransaction(hash)
			if !ok || !bloom.MatchesTx(filter, tx) {
				continue
			}
		}
		h := hash
		if err := batch.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &h)); err != nil {
			p.QueueMessage(batch, nil)
			batch = wire.NewMsgInv()
			_ = batch.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &h))
		}
	}
	if len(batch.InvList) > 0 {
		p.QueueMessage(batch, nil)
	}
}

// onFilterLoad replaces p's bloom filter.
func (d *Dispatcher) onFilterLoad(p *peer.Peer, msg *wire.MsgFilterLoad) {
	filter, err := bloom.LoadFilter(msg)
	if err != nil {
		d.misbehavior.Misbehaving(p, 100, "malformed filterload")
		return
	}
	p.SetFilter(filter)
}

// onFilterAdd extends p's bloom filter, scoring an oversized element
// rather than rejecting it at decode time (wire.MaxFilterAddDataSize is
// the semantic cutoff; the wire decoder accepts a somewhat larger
// element so this handler can score it).
func (d *Dispatcher) onFilterAdd(p *peer.Peer, msg *wire.MsgFilterAdd) {
	if len(msg.Data) > wire.MaxFilterAddDataSize {
		d.misbehavior.Misbehaving(p, 100, "oversized filteradd element")
		return
	}
	if filter := p.Filter(); filter != nil {
		filter.Add(msg.Data)
	}
}

// onFilterClear clears p's bloom filter.
func (d *Dispatcher) onFilterClear(p *peer.Peer, msg *wire.MsgFilterClear) {
	if filter := p.Filter(); filter != nil {
		filter.Clear()
	}
}

// onFilterSizeXthin records p's advertised maximum xthin bloom filter
// size, disconnecting if it falls below the floor this node requires.
func (d *Dispatcher) onFilterSizeXthin(p *peer.Peer, msg *wire.MsgFilterSizeXthin) {
	if msg.MaxFilterSize < wire.SmallestMaxBloomFilterSize {
		p.PushRejectMsg(msg.Command(), wire.RejectNonstandard, "filter size below floor", nil, false)
		p.RequestDisconnect()
		return
	}
	p.SetMaxThinBloomSize(msg.MaxFilterSize)
	p.SetThinCapable(true)
}

// onReject forwards a BLOCK/TX rejection to RequestManager so it stops
// asking this peer for the item, and logs the peer-controlled reason at
// debug level only (SPEC_FULL.md §D: never surfaced to the operator log
// verbatim, since it is attacker-controlled).
func (d *Dispatcher) onReject(p *peer.Peer, msg *wire.MsgReject) {
	log.Debugf("peer %s rejected %s: %s (code %s)", p, msg.Cmd, msg.Reason, msg.Code)
	if msg.Cmd != wire.CmdBlock && msg.Cmd != wire.CmdTx {
		return
	}
	rejects := d.reqMgr.Rejected(msg.Hash, p, msg.Code)
	if rejects > excessiveRejectThreshold {
		d.misbehavior.Misbehaving(p, 10, "excessive rejects")
	}
}

// excessiveRejectThreshold bounds how many rejects from one peer are
// tolerated before they start contributing to its misbehavior score.
const excessiveRejectThreshold = 20
