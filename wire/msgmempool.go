// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgMemPool implements the Message interface and requests a snapshot of
// the remote peer's transaction mempool. It carries no payload.
type MsgMemPool struct{}

func (msg *MsgMemPool) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgMemPool) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgMemPool) Command() string                          { return CmdMemPool }
func (msg *MsgMemPool) MaxPayloadLength(pver uint32) uint32       { return 0 }

// NewMsgMemPool returns a new mempool message.
func NewMsgMemPool() *MsgMemPool { return &MsgMemPool{} }
