// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/btcrelay/peerd/chainhash"
)

// InvVect defines a bitcoin inventory vector which is used to describe
// data, as specified by the Type field, that a peer wants, has, or does
// not have to another peer.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// NewInvVect returns a new InvVect using the provided type and hash.
func NewInvVect(typ InvType, hash *chainhash.Hash) *InvVect {
	return &InvVect{Type: typ, Hash: *hash}
}

func readInvVect(r io.Reader, iv *InvVect) error {
	if err := readElement(r, &iv.Type); err != nil {
		return err
	}
	_, err := io.ReadFull(r, iv.Hash[:])
	return err
}

func writeInvVect(w io.Writer, iv *InvVect) error {
	if err := writeElement(w, iv.Type); err != nil {
		return err
	}
	_, err := w.Write(iv.Hash[:])
	return err
}
