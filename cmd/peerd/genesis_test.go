// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "testing"

func TestGenesisHeadersCoverEveryChain(t *testing.T) {
	for _, name := range []string{"mainnet", "testnet3", "simnet"} {
		header, ok := genesisHeaders[name]
		if !ok {
			t.Fatalf("no genesis header registered for %q", name)
		}
		if header.MerkleRoot != genesisMerkleRoot {
			t.Errorf("%s: MerkleRoot = %s, want %s", name, header.MerkleRoot, genesisMerkleRoot)
		}
		if header.Version != 1 {
			t.Errorf("%s: Version = %d, want 1", name, header.Version)
		}
	}
}

func TestMustHashPanicsOnBadHex(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("mustHash did not panic on invalid hex")
		}
	}()
	mustHash("not-valid-hex")
}
