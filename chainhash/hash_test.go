// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash

import "testing"

func TestHashStringRoundTrip(t *testing.T) {
	wantStr := "000000000000000000000000000000000000000000000000000000000000001a"
	h, err := NewHashFromStr(wantStr)
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if got := h.String(); got != wantStr {
		t.Fatalf("String() = %s, want %s", got, wantStr)
	}
}

func TestHashIsEqual(t *testing.T) {
	a := DoubleHashH([]byte("a"))
	b := DoubleHashH([]byte("a"))
	c := DoubleHashH([]byte("b"))

	if !a.IsEqual(&b) {
		t.Fatalf("expected equal hashes")
	}
	if a.IsEqual(&c) {
		t.Fatalf("expected different hashes")
	}
	if (*Hash)(nil).IsEqual(nil) != true {
		t.Fatalf("two nil hashes should be equal")
	}
}

func TestSetBytesInvalidLength(t *testing.T) {
	var h Hash
	if err := h.SetBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short byte slice")
	}
}
