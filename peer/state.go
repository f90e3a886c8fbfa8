// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

// HandshakeState is the position of a peer in the mandatory version/verack
// handshake. States are monotonic: a peer never moves backward.
type HandshakeState int32

const (
	// StateNew is the state of a freshly accepted or dialed connection
	// before any handshake message has been exchanged.
	StateNew HandshakeState = iota

	// StateVersionReceived is set once the remote peer's version message
	// has been processed.
	StateVersionReceived

	// StateVerAckReceived is set once the remote peer's verack has been
	// processed.
	StateVerAckReceived

	// StateConnected is set once both sides have exchanged version and
	// verack; inventory-send messages are only legal from this state on.
	StateConnected
)

func (s HandshakeState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateVersionReceived:
		return "version-received"
	case StateVerAckReceived:
		return "verack-received"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// BUHandshakeState is the parallel sub-state of the optional BU extension
// handshake (buversion/buverack), tracked independently of the mandatory
// version/verack state.
type BUHandshakeState int32

const (
	// BUStateNone is the state before the extension handshake starts.
	BUStateNone BUHandshakeState = iota

	// BUStateVersionSent is set once we have sent our buversion.
	BUStateVersionSent

	// BUStateVerAckReceived is set once the remote peer's buverack has
	// been processed.
	BUStateVerAckReceived
)
