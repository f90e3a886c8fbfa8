// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgSendCmpct implements the Message interface. It announces a peer's
// support (or lack thereof) for compact block relay and the encoding
// version it prefers. The receiving Peer only records it, setting its
// compact-block support flag when Version == 1; nothing switches the
// relay path on it.
type MsgSendCmpct struct {
	Announce bool
	Version  uint64
}

func (msg *MsgSendCmpct) BtcDecode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.Announce); err != nil {
		return err
	}
	return readElement(r, &msg.Version)
}

func (msg *MsgSendCmpct) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.Announce); err != nil {
		return err
	}
	return writeElement(w, msg.Version)
}

func (msg *MsgSendCmpct) Command() string { return CmdSendCmpct }

func (msg *MsgSendCmpct) MaxPayloadLength(pver uint32) uint32 { return 9 }
