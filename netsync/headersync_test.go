// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/chaincfg"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

// conn and pipe mirror the peer package's own net.Conn test double
// (peer/peer_test.go), reimplemented here since that type is unexported.
type conn struct {
	io.Reader
	io.Writer
	io.Closer

	laddr net.Addr
	raddr net.Addr
}

func (c conn) LocalAddr() net.Addr                 { return c.laddr }
func (c conn) RemoteAddr() net.Addr                { return c.raddr }
func (c conn) Close() error                        { return nil }
func (c conn) SetDeadline(t time.Time) error       { return nil }
func (c conn) SetReadDeadline(t time.Time) error   { return nil }
func (c conn) SetWriteDeadline(t time.Time) error  { return nil }

type testAddr struct{ net, address string }

func (a testAddr) Network() string { return a.net }
func (a testAddr) String() string  { return a.address }

func pipe(c1, c2 *conn) (*conn, *conn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()

	c1.Writer = w1
	c2.Reader = r1
	c1.Reader = r2
	c2.Writer = w2

	return c1, c2
}

func testPeerConfig() *peer.Config {
	return &peer.Config{
		UserAgentName:    "peerd-test",
		UserAgentVersion: "0.1",
		ChainParams:      &chaincfg.SimNetParams,
		Services:         0,
	}
}

// connectedPeerPair hands back two handshaked *peer.Peer values wired
// together over an in-memory pipe, the same harness peer/peer_test.go
// uses, so HandleHeaders can be exercised against a real peer rather
// than a fake that would hide nil-pointer bugs in the peer-notification
// path.
func connectedPeerPair(t *testing.T) (inPeer, outPeer *peer.Peer) {
	t.Helper()

	cfg := testPeerConfig()
	localAddr := testAddr{"tcp", "10.0.0.1:18555"}
	remoteAddr := testAddr{"tcp", "10.0.0.2:18555"}

	inConn, outConn := pipe(&conn{raddr: localAddr}, &conn{raddr: remoteAddr})

	var inErr, outErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		inPeer, inErr = peer.NewInboundPeer(cfg, inConn)
		wg.Done()
	}()
	go func() {
		outPeer, outErr = peer.NewOutboundPeer(cfg, outConn, remoteAddr.String())
		wg.Done()
	}()
	wg.Wait()

	if inErr != nil || outErr != nil {
		t.Fatalf("handshake failed: in=%v out=%v", inErr, outErr)
	}
	return inPeer, outPeer
}

// fakeChain is a minimal ChainView backed directly by a blockindex.Index,
// standing in for node.Chain without creating an import cycle (node
// imports netsync).
type fakeChain struct {
	idx *blockindex.Index
	tip blockindex.NodeIndex
	ibd bool
}

func (c *fakeChain) Index() *blockindex.Index { return c.idx }
func (c *fakeChain) Tip() blockindex.NodeIndex { return c.tip }

func (c *fakeChain) Contains(ni blockindex.NodeIndex) bool {
	lca, ok := c.idx.LastCommonAncestor(c.tip, ni)
	return ok && lca == ni
}

func (c *fakeChain) Locator(ni blockindex.NodeIndex) peer.BlockLocator {
	header := c.idx.Header(ni)
	hash := header.BlockHash()
	return peer.BlockLocator{&hash}
}

func (c *fakeChain) IsInitialBlockDownload() bool { return c.ibd }
func (c *fakeChain) IsChainNearlySyncd() bool      { return !c.ibd }

// fakeValidator accepts every header unconditionally, inserting it into
// the shared index the way node.Chain.AcceptBlockHeader does once a
// header passes consensus checks.
type fakeValidator struct {
	idx *blockindex.Index
}

func (v *fakeValidator) AcceptBlockHeader(header *wire.BlockHeader, parent blockindex.NodeIndex) (blockindex.NodeIndex, bool, error) {
	ni, ok := v.idx.AddChild(parent, header)
	if !ok {
		return 0, false, fmt.Errorf("parent %d vanished", parent)
	}
	return ni, true, nil
}

func newTestHeaderSync(t *testing.T) (*HeaderSync, *fakeChain, blockindex.NodeIndex) {
	t.Helper()
	idx := blockindex.New()
	genesis := wire.BlockHeader{Timestamp: time.Unix(1401292357, 0), Bits: 0x207fffff}
	tip := idx.AddGenesis(&genesis)

	chain := &fakeChain{idx: idx, tip: tip, ibd: false}
	validator := &fakeValidator{idx: idx}
	reqMgr := NewRequestManager(chain)
	hs := NewHeaderSync(chain, validator, reqMgr, 10*time.Minute)
	return hs, chain, tip
}

func headerExtending(idx *blockindex.Index, parent blockindex.NodeIndex, nonce uint32) *wire.BlockHeader {
	parentHeader := idx.Header(parent)
	parentHash := parentHeader.BlockHash()
	return &wire.BlockHeader{
		Version:    1,
		PrevBlock:  parentHash,
		Timestamp:  parentHeader.Timestamp.Add(10 * time.Minute),
		Bits:       0x207fffff,
		Nonce:      nonce,
	}
}

// TestHandleHeadersContiguousBatch exercises a multi-header batch that
// extends the tip directly: every header's PrevBlock chains to the
// previous header in the same message, none of them are yet in the
// index. This is the case the discontinuity-detection loop must not
// mistake for a break after the first header.
func TestHandleHeadersContiguousBatch(t *testing.T) {
	hs, chain, tip := newTestHeaderSync(t)
	inPeer, _ := connectedPeerPair(t)

	h1 := headerExtending(chain.idx, tip, 1)
	h2 := &wire.BlockHeader{
		Version:   1,
		PrevBlock: h1.BlockHash(),
		Timestamp: h1.Timestamp.Add(10 * time.Minute),
		Bits:      0x207fffff,
		Nonce:     2,
	}
	h3 := &wire.BlockHeader{
		Version:   1,
		PrevBlock: h2.BlockHash(),
		Timestamp: h2.Timestamp.Add(10 * time.Minute),
		Bits:      0x207fffff,
		Nonce:     3,
	}

	msg := wire.NewMsgHeaders()
	msg.Headers = []*wire.BlockHeader{h1, h2, h3}

	if err := hs.HandleHeaders(inPeer, msg, nil); err != nil {
		t.Fatalf("HandleHeaders returned unexpected error: %v", err)
	}

	if chain.idx.Len() != 4 { // genesis + 3
		t.Errorf("index length = %d, want 4", chain.idx.Len())
	}

	bestKnown, ok := inPeer.BestKnownBlock()
	if !ok {
		t.Fatal("peer has no best-known block after accepting a contiguous batch")
	}
	if chain.idx.Height(bestKnown) != 3 {
		t.Errorf("peer's best-known block height = %d, want 3", chain.idx.Height(bestKnown))
	}
}

// TestHandleHeadersReconnectFromUnconnectedCache delivers a header whose
// parent isn't known yet, then delivers that parent: the first header
// should be filed in the unconnected cache and reconnected once its
// parent arrives, without dereferencing a nil peer along the way (the
// reconnection path calls acceptContiguous with a nil peer internally).
func TestHandleHeadersReconnectFromUnconnectedCache(t *testing.T) {
	hs, chain, tip := newTestHeaderSync(t)
	inPeer, _ := connectedPeerPair(t)

	h1 := headerExtending(chain.idx, tip, 11)
	h2 := &wire.BlockHeader{
		Version:   1,
		PrevBlock: h1.BlockHash(),
		Timestamp: h1.Timestamp.Add(10 * time.Minute),
		Bits:      0x207fffff,
		Nonce:     12,
	}

	// h2 arrives first: its parent h1 isn't in the index yet, so it must
	// be filed in the unconnected cache rather than rejected outright.
	msg2 := wire.NewMsgHeaders()
	msg2.Headers = []*wire.BlockHeader{h2}
	if err := hs.HandleHeaders(inPeer, msg2, nil); err != nil {
		t.Fatalf("HandleHeaders(h2) returned unexpected error: %v", err)
	}
	if chain.idx.Len() != 1 {
		t.Fatalf("index length after unconnected h2 = %d, want 1 (genesis only)", chain.idx.Len())
	}

	// h1 now arrives and extends the tip directly; this must trigger
	// extendFromUnconnected to pull h2 back in without panicking.
	msg1 := wire.NewMsgHeaders()
	msg1.Headers = []*wire.BlockHeader{h1}
	if err := hs.HandleHeaders(inPeer, msg1, nil); err != nil {
		t.Fatalf("HandleHeaders(h1) returned unexpected error: %v", err)
	}

	if chain.idx.Len() != 3 { // genesis + h1 + h2
		t.Errorf("index length after reconnection = %d, want 3", chain.idx.Len())
	}

	bestKnown, ok := inPeer.BestKnownBlock()
	if !ok {
		t.Fatal("peer has no best-known block after reconnection")
	}
	if chain.idx.Height(bestKnown) != 2 {
		t.Errorf("peer's best-known block height after reconnection = %d, want 2 (h2)", chain.idx.Height(bestKnown))
	}
}
