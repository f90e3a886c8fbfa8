// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"errors"
	"testing"
	"time"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/wire"
)

// fakeValidator is a controllable stand-in for BlockValidator, letting
// tests dictate acceptance without a real consensus engine.
type fakeValidator struct {
	rejectHeader bool
	isOrphan     bool
	current      bool
}

func (v *fakeValidator) CheckBlockHeader(header, parent *wire.BlockHeader) error {
	if v.rejectHeader {
		return errors.New("rejected")
	}
	return nil
}

func (v *fakeValidator) ProcessBlock(ni blockindex.NodeIndex, block *wire.MsgBlock) (bool, error) {
	return v.isOrphan, nil
}

func (v *fakeValidator) IsCurrent() bool { return v.current }

func newTestChain(t *testing.T, validator BlockValidator) (*Chain, blockindex.NodeIndex) {
	t.Helper()
	idx := blockindex.New()
	genesis := wire.BlockHeader{Timestamp: time.Unix(1231006505, 0), Bits: 0x1d00ffff}
	tip := idx.AddGenesis(&genesis)

	chain := NewChain(idx, validator, 10*time.Minute)
	chain.SetActiveTip(tip)
	return chain, tip
}

func TestChainIsInitialBlockDownload(t *testing.T) {
	chain, _ := newTestChain(t, &fakeValidator{current: false})
	if !chain.IsInitialBlockDownload() {
		t.Error("IsInitialBlockDownload() = false, want true when validator reports not current")
	}

	chain2, _ := newTestChain(t, &fakeValidator{current: true})
	if chain2.IsInitialBlockDownload() {
		t.Error("IsInitialBlockDownload() = true, want false when validator reports current")
	}
}

func TestChainAcceptBlockHeaderAcceptsAndRejects(t *testing.T) {
	chain, tip := newTestChain(t, &fakeValidator{current: true})

	child := &wire.BlockHeader{Timestamp: time.Unix(1231006505+600, 0)}
	_, accepted, err := chain.AcceptBlockHeader(child, tip)
	if err != nil {
		t.Fatalf("AcceptBlockHeader returned unexpected error: %v", err)
	}
	if !accepted {
		t.Fatal("AcceptBlockHeader rejected a header the validator should have accepted")
	}

	rejecting, rejectingTip := newTestChain(t, &fakeValidator{rejectHeader: true})
	_, accepted, err = rejecting.AcceptBlockHeader(child, rejectingTip)
	if err != nil {
		t.Fatalf("AcceptBlockHeader returned unexpected error on rejection path: %v", err)
	}
	if accepted {
		t.Fatal("AcceptBlockHeader accepted a header the validator should have rejected")
	}
}

func TestChainProcessBlockAdvancesTip(t *testing.T) {
	chain, tip := newTestChain(t, &fakeValidator{current: true})

	child := &wire.BlockHeader{Timestamp: time.Unix(1231006505+600, 0), Bits: 0x1d00ffff}
	ni, accepted, err := chain.AcceptBlockHeader(child, tip)
	if err != nil || !accepted {
		t.Fatalf("AcceptBlockHeader failed: accepted=%v err=%v", accepted, err)
	}

	block := &wire.MsgBlock{Header: *child}
	isOrphan, err := chain.ProcessBlock(ni, block)
	if err != nil {
		t.Fatalf("ProcessBlock returned unexpected error: %v", err)
	}
	if isOrphan {
		t.Fatal("ProcessBlock reported an orphan for a validator configured to accept")
	}
	if chain.Tip() != ni {
		t.Error("ProcessBlock did not advance the active tip to the higher-work block")
	}
}

func TestChainProcessBlockOrphanDoesNotAdvanceTip(t *testing.T) {
	chain, tip := newTestChain(t, &fakeValidator{current: true, isOrphan: true})

	child := &wire.BlockHeader{Timestamp: time.Unix(1231006505+600, 0)}
	ni, accepted, err := chain.AcceptBlockHeader(child, tip)
	if err != nil || !accepted {
		t.Fatalf("AcceptBlockHeader failed: accepted=%v err=%v", accepted, err)
	}

	isOrphan, err := chain.ProcessBlock(ni, &wire.MsgBlock{Header: *child})
	if err != nil {
		t.Fatalf("ProcessBlock returned unexpected error: %v", err)
	}
	if !isOrphan {
		t.Fatal("ProcessBlock did not report an orphan")
	}
	if chain.Tip() != tip {
		t.Error("ProcessBlock advanced the tip despite the block being an orphan")
	}
}

func TestChainLocatorEndsAtGenesis(t *testing.T) {
	chain, tip := newTestChain(t, &fakeValidator{current: true})
	locator := chain.Locator(tip)
	if len(locator) == 0 {
		t.Fatal("Locator returned no entries")
	}
	genesisHeader := chain.Index().Header(tip)
	genesisHash := genesisHeader.BlockHash()
	if *locator[len(locator)-1] != genesisHash {
		t.Error("Locator's last entry is not the genesis hash")
	}
}
