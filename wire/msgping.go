// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPing implements the Message interface. The Nonce field is only
// present for protocol versions above BIP0031Version; at or below it a
// ping is empty and expects no pong.
type MsgPing struct {
	Nonce uint64
}

func (msg *MsgPing) BtcDecode(r io.Reader, pver uint32) error {
	if pver <= BIP0031Version {
		return nil
	}
	return readElement(r, &msg.Nonce)
}

func (msg *MsgPing) BtcEncode(w io.Writer, pver uint32) error {
	if pver <= BIP0031Version {
		return nil
	}
	return writeElement(w, msg.Nonce)
}

func (msg *MsgPing) Command() string { return CmdPing }

func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 { return 8 }

// NewMsgPing returns a new ping message using the given nonce.
func NewMsgPing(nonce uint64) *MsgPing { return &MsgPing{Nonce: nonce} }
