// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/go-socks/socks"

	"github.com/btcrelay/peerd/chaincfg"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/wire"
)

// conn mocks a network connection by implementing the net.Conn interface.
// It is used to test peer connection without actually opening a network
// connection.
type conn struct {
	io.Reader
	io.Writer
	io.Closer

	laddr net.Addr
	raddr net.Addr

	// proxy mocks a SOCKS-proxied connection if true.
	proxy bool
}

func (c conn) LocalAddr() net.Addr { return c.laddr }

func (c conn) RemoteAddr() net.Addr {
	if !c.proxy {
		return c.raddr
	}
	host, strPort, _ := net.SplitHostPort(c.raddr.String())
	port, _ := strconv.Atoi(strPort)
	return &socks.ProxiedAddr{
		Net:  c.raddr.Network(),
		Host: host,
		Port: port,
	}
}

func (c conn) Close() error                      { return nil }
func (c conn) SetDeadline(t time.Time) error      { return nil }
func (c conn) SetReadDeadline(t time.Time) error  { return nil }
func (c conn) SetWriteDeadline(t time.Time) error { return nil }

type addr struct {
	net, address string
}

func (m addr) Network() string { return m.net }
func (m addr) String() string  { return m.address }

// pipe turns two mock connections into a full-duplex connection similar to
// net.Pipe, but with fixed fake addresses on each end.
func pipe(c1, c2 *conn) (*conn, *conn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()

	c1.Writer = w1
	c2.Reader = r1
	c1.Reader = r2
	c2.Writer = w2

	return c1, c2
}

func testConfig() *peer.Config {
	return &peer.Config{
		UserAgentName:    "peerd",
		UserAgentVersion: "0.1",
		ChainParams:      &chaincfg.SimNetParams,
		Services:         0,
	}
}

func TestPeerConnection(t *testing.T) {
	verack := make(chan struct{}, 2)
	cfg := testConfig()
	cfg.Listeners.OnWrite = func(p *peer.Peer, n int, msg wire.Message, err error) {
		if _, ok := msg.(*wire.MsgVerAck); ok {
			verack <- struct{}{}
		}
	}

	localAddr, err := net.ResolveTCPAddr("tcp", "10.0.0.1:18555")
	if err != nil {
		t.Fatal(err)
	}
	remoteAddr, err := net.ResolveTCPAddr("tcp", "10.0.0.2:18555")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		proxy bool
	}{
		{"basic handshake", false},
		{"socks proxy", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			inConn, outConn := pipe(
				&conn{raddr: localAddr, proxy: test.proxy},
				&conn{raddr: remoteAddr},
			)

			var inPeer, outPeer *peer.Peer
			var inErr, outErr error
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				inPeer, inErr = peer.NewInboundPeer(cfg, inConn)
				wg.Done()
			}()
			go func() {
				outPeer, outErr = peer.NewOutboundPeer(cfg, outConn, outConn.RemoteAddr().String())
				wg.Done()
			}()
			wg.Wait()

			if inErr != nil || outErr != nil {
				t.Fatalf("in err: %v, out err: %v", inErr, outErr)
			}
			for i := 0; i < 2; i++ {
				select {
				case <-verack:
				case <-time.After(time.Second):
					t.Fatal("verack timeout")
				}
			}

			if !inPeer.Connected() {
				t.Error("inbound peer not connected after handshake")
			}
			if !outPeer.Connected() {
				t.Error("outbound peer not connected after handshake")
			}
			if inPeer.HandshakeState() != peer.StateConnected {
				t.Errorf("inbound handshake state = %v, want StateConnected", inPeer.HandshakeState())
			}
			if outPeer.ProtocolVersion() != peer.MaxProtocolVersion {
				t.Errorf("outbound protocol version = %d, want %d", outPeer.ProtocolVersion(), peer.MaxProtocolVersion)
			}

			inPeer.Disconnect()
			outPeer.Disconnect()
			inPeer.WaitForDisconnect()
			outPeer.WaitForDisconnect()
		})
	}
}

// TestPeerListeners checks that a sample of inbound message types
// (getaddr, ping, mempool, inv) reach their registered listeners.
func TestPeerListeners(t *testing.T) {
	ok := make(chan wire.Message, 20)
	inCfg := testConfig()
	inCfg.Listeners = peer.MessageListeners{
		OnGetAddr: func(p *peer.Peer, msg *wire.MsgGetAddr) { ok <- msg },
		OnAddr:    func(p *peer.Peer, msg *wire.MsgAddr) { ok <- msg },
		OnPing:    func(p *peer.Peer, msg *wire.MsgPing) { ok <- msg },
		OnMemPool: func(p *peer.Peer, msg *wire.MsgMemPool) { ok <- msg },
		OnTx:      func(p *peer.Peer, msg *wire.MsgTx) { ok <- msg },
		OnInv:     func(p *peer.Peer, msg *wire.MsgInv) { ok <- msg },
		OnHeaders: func(p *peer.Peer, msg *wire.MsgHeaders) { ok <- msg },
		OnGetData: func(p *peer.Peer, msg *wire.MsgGetData) { ok <- msg },
	}
	outCfg := testConfig()

	localAddr := &addr{net: "tcp", address: "10.0.0.1:18555"}
	remoteAddr := &addr{net: "tcp", address: "10.0.0.2:18555"}
	inConn, outConn := pipe(&conn{raddr: localAddr}, &conn{raddr: remoteAddr})

	var inPeer, outPeer *peer.Peer
	var inErr, outErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		inPeer, inErr = peer.NewInboundPeer(inCfg, inConn)
		wg.Done()
	}()
	go func() {
		outPeer, outErr = peer.NewOutboundPeer(outCfg, outConn, "10.0.0.2:18555")
		wg.Done()
	}()
	wg.Wait()
	if inErr != nil || outErr != nil {
		t.Fatalf("in err: %v, out err: %v", inErr, outErr)
	}
	defer inPeer.Disconnect()
	defer outPeer.Disconnect()

	tests := []struct {
		name string
		msg  wire.Message
	}{
		{"getaddr", wire.NewMsgGetAddr()},
		{"ping", wire.NewMsgPing(42)},
		{"mempool", &wire.MsgMemPool{}},
		{"inv", wire.NewMsgInv()},
	}
	for _, test := range tests {
		outPeer.QueueMessage(test.msg, nil)
		select {
		case <-ok:
		case <-time.After(time.Second):
			t.Errorf("%s: listener not invoked", test.name)
		}
	}
}

func TestPushRejectMsg(t *testing.T) {
	cfg := testConfig()
	written := make(chan wire.Message, 1)
	cfg.Listeners.OnWrite = func(p *peer.Peer, n int, msg wire.Message, err error) {
		if _, ok := msg.(*wire.MsgReject); ok {
			written <- msg
		}
	}

	localAddr := &addr{net: "tcp", address: "10.0.0.1:18555"}
	remoteAddr := &addr{net: "tcp", address: "10.0.0.2:18555"}
	inConn, outConn := pipe(&conn{raddr: localAddr}, &conn{raddr: remoteAddr})

	var inPeer, outPeer *peer.Peer
	var inErr, outErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		inPeer, inErr = peer.NewInboundPeer(cfg, inConn)
		wg.Done()
	}()
	go func() {
		outPeer, outErr = peer.NewOutboundPeer(cfg, outConn, "10.0.0.2:18555")
		wg.Done()
	}()
	wg.Wait()
	if inErr != nil || outErr != nil {
		t.Fatalf("in err: %v, out err: %v", inErr, outErr)
	}
	defer inPeer.Disconnect()
	defer outPeer.Disconnect()

	outPeer.PushRejectMsg(wire.CmdTx, wire.RejectMalformed, "bad tx", nil, false)
	select {
	case msg := <-written:
		reject := msg.(*wire.MsgReject)
		if reject.Cmd != wire.CmdTx {
			t.Errorf("reject.Cmd = %q, want %q", reject.Cmd, wire.CmdTx)
		}
	case <-time.After(time.Second):
		t.Fatal("reject message never written")
	}
}

func TestDuplicateGetBlocksFiltered(t *testing.T) {
	cfg := testConfig()
	writes := make(chan wire.Message, 4)
	cfg.Listeners.OnWrite = func(p *peer.Peer, n int, msg wire.Message, err error) {
		if _, ok := msg.(*wire.MsgGetBlocks); ok {
			writes <- msg
		}
	}

	localAddr := &addr{net: "tcp", address: "10.0.0.1:18555"}
	remoteAddr := &addr{net: "tcp", address: "10.0.0.2:18555"}
	inConn, outConn := pipe(&conn{raddr: localAddr}, &conn{raddr: remoteAddr})

	var outPeer *peer.Peer
	var inErr, outErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		_, inErr = peer.NewInboundPeer(cfg, inConn)
		wg.Done()
	}()
	go func() {
		outPeer, outErr = peer.NewOutboundPeer(cfg, outConn, "10.0.0.2:18555")
		wg.Done()
	}()
	wg.Wait()
	if inErr != nil || outErr != nil {
		t.Fatalf("in err: %v, out err: %v", inErr, outErr)
	}
	defer outPeer.Disconnect()

	locator := peer.BlockLocator{&zeroHash}
	if err := outPeer.PushGetBlocksMsg(locator, &zeroHash); err != nil {
		t.Fatal(err)
	}
	if err := outPeer.PushGetBlocksMsg(locator, &zeroHash); err != nil {
		t.Fatal(err)
	}

	select {
	case <-writes:
	case <-time.After(time.Second):
		t.Fatal("expected first getblocks to be written")
	}
	select {
	case <-writes:
		t.Fatal("duplicate getblocks should have been filtered")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	cfg := testConfig()
	localAddr := &addr{net: "tcp", address: "10.0.0.1:18555"}
	remoteAddr := &addr{net: "tcp", address: "10.0.0.2:18555"}
	inConn, outConn := pipe(&conn{raddr: localAddr}, &conn{raddr: remoteAddr})

	var inPeer, outPeer *peer.Peer
	var inErr, outErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		inPeer, inErr = peer.NewInboundPeer(cfg, inConn)
		wg.Done()
	}()
	go func() {
		outPeer, outErr = peer.NewOutboundPeer(cfg, outConn, "10.0.0.2:18555")
		wg.Done()
	}()
	wg.Wait()
	if inErr != nil || outErr != nil {
		t.Fatalf("in err: %v, out err: %v", inErr, outErr)
	}

	outPeer.Disconnect()
	outPeer.Disconnect()
	outPeer.WaitForDisconnect()
	if outPeer.Connected() {
		t.Error("peer still reports connected after Disconnect")
	}
	inPeer.Disconnect()
	inPeer.WaitForDisconnect()
}

var zeroHash chainhash.Hash
