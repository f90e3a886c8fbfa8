// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxFilterAddDataSize caps a filteradd element that the node will honor;
// an oversized element earns misbehavior points from the dispatcher
// rather than being rejected during decoding, so a slightly-over-cap
// peer is scored rather than silently disconnected.
const MaxFilterAddDataSize = 520

// maxFilterAddWireSize is the hard decode-time ceiling. It sits above
// MaxFilterAddDataSize so an element a few bytes over the semantic cap
// still decodes far enough for the dispatcher to score it; only a
// grossly oversized element fails at the wire layer.
const maxFilterAddWireSize = 4 * MaxFilterAddDataSize

// MsgFilterAdd implements the Message interface and extends a peer's
// bloom filter with one additional element.
type MsgFilterAdd struct {
	Data []byte
}

func (msg *MsgFilterAdd) BtcDecode(r io.Reader, pver uint32) error {
	data, err := ReadVarBytes(r, maxFilterAddWireSize, "filteradd data")
	if err != nil {
		return err
	}
	msg.Data = data
	return nil
}

func (msg *MsgFilterAdd) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.Data) > MaxFilterAddDataSize {
		return fmt.Errorf("filteradd data size too large [size %d, max %d]",
			len(msg.Data), MaxFilterAddDataSize)
	}
	return WriteVarBytes(w, msg.Data)
}

func (msg *MsgFilterAdd) Command() string { return CmdFilterAdd }

func (msg *MsgFilterAdd) MaxPayloadLength(pver uint32) uint32 {
	return uint32(VarIntSerializeSize(MaxFilterAddDataSize)) + MaxFilterAddDataSize
}
