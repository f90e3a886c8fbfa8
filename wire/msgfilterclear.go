// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgFilterClear implements the Message interface and requests the peer
// drop its bloom filter and stop sending filtered inventory.
type MsgFilterClear struct{}

func (msg *MsgFilterClear) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgFilterClear) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgFilterClear) Command() string                          { return CmdFilterClear }
func (msg *MsgFilterClear) MaxPayloadLength(pver uint32) uint32       { return 0 }

// NewMsgFilterClear returns a new filterclear message.
func NewMsgFilterClear() *MsgFilterClear { return &MsgFilterClear{} }
