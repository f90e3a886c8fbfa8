// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/btcrelay/peerd/chainhash"
)

// MaxFlagsPerMerkleBlock caps the bit-flag byte string of a partial
// merkle tree for decode purposes.
const MaxFlagsPerMerkleBlock = 1 << 17

// MsgMerkleBlock implements the Message interface and carries a block
// header plus a partial merkle tree proving which transactions matched a
// peer's bloom filter.
type MsgMerkleBlock struct {
	Header       BlockHeader
	Transactions uint32
	Hashes       []*chainhash.Hash
	Flags        []byte
}

func (msg *MsgMerkleBlock) BtcDecode(r io.Reader, pver uint32) error {
	if err := readBlockHeader(r, &msg.Header); err != nil {
		return err
	}
	if err := readElement(r, &msg.Transactions); err != nil {
		return err
	}

	hashCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if hashCount > MaxHeadersPerMsg {
		return fmt.Errorf("too many merkle hashes for message [count %d, max %d]",
			hashCount, MaxHeadersPerMsg)
	}
	hashes := make([]chainhash.Hash, hashCount)
	msg.Hashes = make([]*chainhash.Hash, 0, hashCount)
	for i := uint64(0); i < hashCount; i++ {
		h := &hashes[i]
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return err
		}
		msg.Hashes = append(msg.Hashes, h)
	}

	flags, err := ReadVarBytes(r, MaxFlagsPerMerkleBlock, "merkle block flags")
	if err != nil {
		return err
	}
	msg.Flags = flags
	return nil
}

func (msg *MsgMerkleBlock) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeBlockHeader(w, &msg.Header); err != nil {
		return err
	}
	if err := writeElement(w, msg.Transactions); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(msg.Hashes))); err != nil {
		return err
	}
	for _, h := range msg.Hashes {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	return WriteVarBytes(w, msg.Flags)
}

func (msg *MsgMerkleBlock) Command() string { return CmdMerkleBlock }

func (msg *MsgMerkleBlock) MaxPayloadLength(pver uint32) uint32 { return MaxMessagePayload }

// NewMsgMerkleBlock returns a new merkleblock message for the given
// header.
func NewMsgMerkleBlock(header *BlockHeader) *MsgMerkleBlock {
	return &MsgMerkleBlock{Header: *header}
}
