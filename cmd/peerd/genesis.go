// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

// genesisMerkleRoot is the coinbase-only merkle root shared by every
// network's genesis block.
var genesisMerkleRoot = mustHash("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")

// genesisHeaders bootstraps the header index before any peer has been
// contacted. chaincfg deliberately does not carry these since consensus
// parameters are out of scope for this module (SPEC_FULL.md §F); the
// well-known values below only exist so the header tree has a root to
// hang the rest of the chain on.
var genesisHeaders = map[string]wire.BlockHeader{
	"mainnet": {
		Version:    1,
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	},
	"testnet3": {
		Version:    1,
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1296688602, 0),
		Bits:       0x1d00ffff,
		Nonce:      414098458,
	},
	"simnet": {
		Version:    1,
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1401292357, 0),
		Bits:       0x207fffff,
		Nonce:      2,
	},
}

func mustHash(hexStr string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return *h
}
