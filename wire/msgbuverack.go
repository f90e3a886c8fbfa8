// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgBUVerAck implements the Message interface and completes the BU
// extension handshake. It carries no payload.
type MsgBUVerAck struct{}

func (msg *MsgBUVerAck) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgBUVerAck) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgBUVerAck) Command() string                          { return CmdBUVerAck }
func (msg *MsgBUVerAck) MaxPayloadLength(pver uint32) uint32       { return 0 }

// NewMsgBUVerAck returns a new buverack message.
func NewMsgBUVerAck() *MsgBUVerAck { return &MsgBUVerAck{} }
