// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"net"
	"strconv"
	"time"

	"github.com/btcsuite/go-socks/socks"

	"github.com/btcrelay/peerd/chaincfg"
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

// BlockLocator is a sequence of block hashes, sparse toward the genesis
// end, used to find a fork point with a remote peer.
type BlockLocator []*chainhash.Hash

// MessageListeners defines the callback hooks MessageDispatcher registers
// with a Peer. Any listener left nil is simply not invoked. Listeners run
// serially on the peer's read goroutine, so a listener must not block on
// anything that itself waits on that goroutine (WaitForDisconnect, a full
// send queue on the same peer).
type MessageListeners struct {
	OnGetAddr         func(p *Peer, msg *wire.MsgGetAddr)
	OnAddr            func(p *Peer, msg *wire.MsgAddr)
	OnPing            func(p *Peer, msg *wire.MsgPing)
	OnPong            func(p *Peer, msg *wire.MsgPong)
	OnMemPool         func(p *Peer, msg *wire.MsgMemPool)
	OnTx              func(p *Peer, msg *wire.MsgTx)
	OnBlock           func(p *Peer, msg *wire.MsgBlock, buf []byte)
	OnInv             func(p *Peer, msg *wire.MsgInv)
	OnHeaders         func(p *Peer, msg *wire.MsgHeaders)
	OnNotFound        func(p *Peer, msg *wire.MsgNotFound)
	OnGetData         func(p *Peer, msg *wire.MsgGetData)
	OnGetBlocks       func(p *Peer, msg *wire.MsgGetBlocks)
	OnGetHeaders      func(p *Peer, msg *wire.MsgGetHeaders)
	OnFilterAdd       func(p *Peer, msg *wire.MsgFilterAdd)
	OnFilterClear     func(p *Peer, msg *wire.MsgFilterClear)
	OnFilterLoad      func(p *Peer, msg *wire.MsgFilterLoad)
	OnFilterSizeXthin func(p *Peer, msg *wire.MsgFilterSizeXthin)
	OnMerkleBlock     func(p *Peer, msg *wire.MsgMerkleBlock)
	OnSendHeaders     func(p *Peer, msg *wire.MsgSendHeaders)
	OnSendCmpct       func(p *Peer, msg *wire.MsgSendCmpct)
	OnBUVersion       func(p *Peer, msg *wire.MsgBUVersion)
	OnBUVerAck        func(p *Peer, msg *wire.MsgBUVerAck)
	OnVersion         func(p *Peer, msg *wire.MsgVersion)
	OnVerAck          func(p *Peer, msg *wire.MsgVerAck)
	OnReject          func(p *Peer, msg *wire.MsgReject)

	// OnRead and OnWrite see every inbound/outbound message regardless of
	// type, for server-wide byte accounting.
	OnRead  func(p *Peer, bytesRead int, msg wire.Message, err error)
	OnWrite func(p *Peer, bytesWritten int, msg wire.Message, err error)
}

// Config holds the options needed to construct a Peer.
type Config struct {
	// NewestBlock supplies the local tip's hash and height for the
	// version message. Nil reports height 0.
	NewestBlock ShaFunc

	// BestLocalAddress returns the local address to advertise to a
	// given remote address.
	BestLocalAddress AddrFunc

	// HostToNetAddress resolves a host:port into a NetAddress. Nil falls
	// back to parsing the host as a literal IP.
	HostToNetAddress HostToNetAddrFunc

	// Proxy, if set, is the address of the SOCKS proxy all connections
	// are being made through; used only to avoid leaking it as the
	// peer's reported address.
	Proxy string

	UserAgentName    string
	UserAgentVersion string

	ChainParams *chaincfg.Params

	// Services are the services this node advertises as supporting.
	Services wire.ServiceFlag

	// ProtocolVersion caps the version we advertise and accept.
	ProtocolVersion uint32

	// DisableRelayTx tells the remote peer not to send us tx invs.
	DisableRelayTx bool

	// ListenPort is stored on the Config only: nothing reads it, and the
	// buversion the node package sends after verack carries a listen
	// port of zero.
	ListenPort uint16

	// Whitelisted exempts the peer from banning and from several
	// bandwidth-driven disconnects.
	Whitelisted bool

	Listeners MessageListeners
}

// ShaFunc reports the local chain tip.
type ShaFunc func() (hash *chainhash.Hash, height int32, err error)

// AddrFunc returns the local address to report for a given remote one.
type AddrFunc func(remoteAddr *wire.NetAddress) *wire.NetAddress

// HostToNetAddrFunc resolves a host/port/services triple into a NetAddress.
type HostToNetAddrFunc func(host string, port uint16, services wire.ServiceFlag) (*wire.NetAddress, error)

// pausableTimer is a time.AfterFunc timer that can be paused and resumed
// without losing track of its remaining duration, used to hold off a
// response deadline while a peer's message-handling goroutine is busy
// processing something else.
type pausableTimer struct {
	t     *time.Timer
	start time.Time
	d     time.Duration
}

func pausableTimerAfterFunc(d time.Duration, f func()) *pausableTimer {
	return &pausableTimer{t: time.AfterFunc(d, f), start: time.Now(), d: d}
}

func (pt *pausableTimer) Pause() bool {
	pt.d = pt.start.Add(pt.d).Sub(time.Now())
	return pt.t.Stop()
}

func (pt *pausableTimer) Unpause() bool {
	if pt.d >= 0 {
		pt.t.Reset(pt.d)
		pt.start = time.Now()
		return true
	}
	return false
}

func (pt *pausableTimer) Stop() bool {
	return pt.t.Stop()
}

type writeMsg struct {
	msg  wire.Message
	done chan<- struct{}
}

type readMsg struct {
	msg wire.Message
	buf []byte
	err error
}

// StatsSnap is an immutable snapshot of a peer's protocol stats at a point
// in time, safe to hand to a caller outside the peer's own locking.
type StatsSnap struct {
	ID               int32
	Addr             string
	Services         wire.ServiceFlag
	LastSend         time.Time
	LastRecv         time.Time
	BytesSent        uint64
	BytesRecv        uint64
	ConnTime         time.Time
	TimeOffset       int64
	ProtocolVersion  uint32
	UserAgent        string
	Inbound          bool
	StartingHeight   int32
	LastBlock        int32
	LastPingNonce    uint64
	LastPingTime     time.Time
	LastPingMicros   int64
	MisbehaviorScore uint32
	Whitelisted      bool
}

// newNetAddress builds a NetAddress from a net.Addr, handling the direct
// TCP and SOCKS-proxied cases before falling back to string parsing.
func newNetAddress(addr net.Addr, services wire.ServiceFlag) (*wire.NetAddress, error) {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return wire.NewNetAddressIPPort(tcpAddr.IP, uint16(tcpAddr.Port), services), nil
	}
	if proxiedAddr, ok := addr.(*socks.ProxiedAddr); ok {
		ip := net.ParseIP(proxiedAddr.Host)
		if ip == nil {
			ip = net.ParseIP("0.0.0.0")
		}
		return wire.NewNetAddressIPPort(ip, uint16(proxiedAddr.Port), services), nil
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}
	return wire.NewNetAddressIPPort(ip, uint16(port), services), nil
}
