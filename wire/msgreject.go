// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/btcrelay/peerd/chainhash"
)

// MaxRejectReasonLen is the maximum length, in bytes, of a human-readable
// rejection reason string.
const MaxRejectReasonLen = 250

// MsgReject implements the Message interface and notifies a peer that one
// of its messages was rejected. The node never generates a reply to a
// received reject; it only ever sends one.
type MsgReject struct {
	// Cmd is the command of the message that triggered the rejection.
	Cmd string

	// Code is the numeric rejection code.
	Code RejectCode

	// Reason is a human-readable rejection reason.
	Reason string

	// Hash is populated for tx/block rejections naming the rejected
	// item.
	Hash chainhash.Hash
}

func (msg *MsgReject) BtcDecode(r io.Reader, pver uint32) error {
	cmd, err := ReadVarString(r, CommandSize*4)
	if err != nil {
		return err
	}
	msg.Cmd = cmd

	var code uint8
	if err := readElement(r, &code); err != nil {
		return err
	}
	msg.Code = RejectCode(code)

	reason, err := ReadVarString(r, MaxRejectReasonLen)
	if err != nil {
		return err
	}
	msg.Reason = reason

	if msg.Cmd == CmdBlock || msg.Cmd == CmdTx {
		if _, err := io.ReadFull(r, msg.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgReject) BtcEncode(w io.Writer, pver uint32) error {
	if err := WriteVarString(w, msg.Cmd); err != nil {
		return err
	}
	if err := writeElement(w, uint8(msg.Code)); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.Reason); err != nil {
		return err
	}
	if msg.Cmd == CmdBlock || msg.Cmd == CmdTx {
		if _, err := w.Write(msg.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgReject) Command() string { return CmdReject }

func (msg *MsgReject) MaxPayloadLength(pver uint32) uint32 {
	return uint32(VarIntSerializeSize(CommandSize*4)) + CommandSize*4 + 1 +
		uint32(VarIntSerializeSize(MaxRejectReasonLen)) + MaxRejectReasonLen + chainhash.HashSize
}

// NewMsgReject returns a new reject message for the given command, code,
// and reason.
func NewMsgReject(command string, code RejectCode, reason string) *MsgReject {
	return &MsgReject{Cmd: command, Code: code, Reason: reason}
}
