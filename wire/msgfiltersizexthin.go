// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// SmallestMaxBloomFilterSize is the floor below which a peer's advertised
// maximum xthin bloom filter size is rejected.
const SmallestMaxBloomFilterSize = 16000

// MsgFilterSizeXthin implements the Message interface for the BU
// extension that advertises the maximum bloom filter size a peer will
// accept when building a thin block.
type MsgFilterSizeXthin struct {
	MaxFilterSize uint32
}

func (msg *MsgFilterSizeXthin) BtcDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.MaxFilterSize)
}

func (msg *MsgFilterSizeXthin) BtcEncode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.MaxFilterSize)
}

func (msg *MsgFilterSizeXthin) Command() string { return CmdFilterSizeXthin }

func (msg *MsgFilterSizeXthin) MaxPayloadLength(pver uint32) uint32 { return 4 }

// NewMsgFilterSizeXthin returns a new filtersizextn message advertising
// maxSize.
func NewMsgFilterSizeXthin(maxSize uint32) *MsgFilterSizeXthin {
	return &MsgFilterSizeXthin{MaxFilterSize: maxSize}
}
