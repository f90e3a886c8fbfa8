// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/btcrelay/peerd/chainhash"
)

// MaxInvPerMsg is the maximum number of inventory vectors a single inv or
// getdata message may carry.
const MaxInvPerMsg = 50000

// baseInvListMessage implements the shared wire shape of inv/getdata/
// notfound: a compact-size count followed by that many InvVect entries.
type baseInvListMessage struct {
	InvList []*InvVect
}

// AddInvVect adds an inventory vector to the message.
func (msg *baseInvListMessage) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return fmt.Errorf("too many invvect in message [max %d]", MaxInvPerMsg)
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

func (msg *baseInvListMessage) decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxInvPerMsg {
		return fmt.Errorf("too many invvect in message [count %d, max %d]",
			count, MaxInvPerMsg)
	}

	invList := make([]InvVect, count)
	msg.InvList = make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		iv := &invList[i]
		if err := readInvVect(r, iv); err != nil {
			return err
		}
		msg.InvList = append(msg.InvList, iv)
	}
	return nil
}

func (msg *baseInvListMessage) encode(w io.Writer) error {
	count := len(msg.InvList)
	if count > MaxInvPerMsg {
		return fmt.Errorf("too many invvect in message [count %d, max %d]",
			count, MaxInvPerMsg)
	}
	if err := WriteVarInt(w, uint64(count)); err != nil {
		return err
	}
	for _, iv := range msg.InvList {
		if err := writeInvVect(w, iv); err != nil {
			return err
		}
	}
	return nil
}

func maxInvListPayload() uint32 {
	// 4-byte type + hash per entry, plus the varint count prefix.
	return uint32(VarIntSerializeSize(MaxInvPerMsg)) +
		MaxInvPerMsg*(4+chainhash.HashSize)
}

// MsgInv implements the Message interface and advertises inventory a peer
// has to its remote peer.
type MsgInv struct{ baseInvListMessage }

func (msg *MsgInv) BtcDecode(r io.Reader, pver uint32) error { return msg.decode(r) }
func (msg *MsgInv) BtcEncode(w io.Writer, pver uint32) error { return msg.encode(w) }
func (msg *MsgInv) Command() string                          { return CmdInv }
func (msg *MsgInv) MaxPayloadLength(pver uint32) uint32      { return maxInvListPayload() }

// NewMsgInv returns a new inv message.
func NewMsgInv() *MsgInv {
	return &MsgInv{baseInvListMessage{InvList: make([]*InvVect, 0, defaultInvListAlloc)}}
}

const defaultInvListAlloc = 1000

// MsgGetData implements the Message interface and requests a peer send
// the full data for inventory it previously advertised.
type MsgGetData struct{ baseInvListMessage }

func (msg *MsgGetData) BtcDecode(r io.Reader, pver uint32) error { return msg.decode(r) }
func (msg *MsgGetData) BtcEncode(w io.Writer, pver uint32) error { return msg.encode(w) }
func (msg *MsgGetData) Command() string                          { return CmdGetData }
func (msg *MsgGetData) MaxPayloadLength(pver uint32) uint32      { return maxInvListPayload() }

// NewMsgGetData returns a new getdata message.
func NewMsgGetData() *MsgGetData {
	return &MsgGetData{baseInvListMessage{InvList: make([]*InvVect, 0, defaultInvListAlloc)}}
}

// MsgNotFound implements the Message interface and tells a peer that
// requested inventory could not be found.
type MsgNotFound struct{ baseInvListMessage }

func (msg *MsgNotFound) BtcDecode(r io.Reader, pver uint32) error { return msg.decode(r) }
func (msg *MsgNotFound) BtcEncode(w io.Writer, pver uint32) error { return msg.encode(w) }
func (msg *MsgNotFound) Command() string                          { return CmdNotFound }
func (msg *MsgNotFound) MaxPayloadLength(pver uint32) uint32      { return maxInvListPayload() }

// NewMsgNotFound returns a new notfound message.
func NewMsgNotFound() *MsgNotFound {
	return &MsgNotFound{baseInvListMessage{InvList: make([]*InvVect, 0, defaultInvListAlloc)}}
}
