// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgBUVersion implements the Message interface for the BU extension
// handshake.
// It carries the sender's externally-reachable listening port so the
// receiving peer can attempt an outbound connection back for redundant
// block relay.
type MsgBUVersion struct {
	AddrMeListenPort uint16
}

func (msg *MsgBUVersion) BtcDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.AddrMeListenPort)
}

func (msg *MsgBUVersion) BtcEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.AddrMeListenPort)
}

func (msg *MsgBUVersion) Command() string { return CmdBUVersion }

func (msg *MsgBUVersion) MaxPayloadLength(pver uint32) uint32 { return 2 }

// NewMsgBUVersion returns a new buversion message advertising listenPort.
func NewMsgBUVersion(listenPort uint16) *MsgBUVersion {
	return &MsgBUVersion{AddrMeListenPort: listenPort}
}
