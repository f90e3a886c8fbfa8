// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgSendHeaders implements the Message interface and tells the remote
// peer to announce new blocks via headers rather than inv.
type MsgSendHeaders struct{}

func (msg *MsgSendHeaders) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgSendHeaders) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgSendHeaders) Command() string                          { return CmdSendHeaders }
func (msg *MsgSendHeaders) MaxPayloadLength(pver uint32) uint32       { return 0 }

// NewMsgSendHeaders returns a new sendheaders message.
func NewMsgSendHeaders() *MsgSendHeaders { return &MsgSendHeaders{} }
