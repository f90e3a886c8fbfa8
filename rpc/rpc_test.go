// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/node"
	"github.com/btcrelay/peerd/wire"
)

// nopValidator satisfies node.BlockValidator without performing any real
// consensus checks, standing in for the out-of-scope validation layer in
// tests that only need a Chain to exist.
type nopValidator struct{}

func (nopValidator) CheckBlockHeader(header, parent *wire.BlockHeader) error { return nil }
func (nopValidator) ProcessBlock(ni blockindex.NodeIndex, block *wire.MsgBlock) (bool, error) {
	return false, nil
}
func (nopValidator) IsCurrent() bool { return false }

func newTestServer() *Server {
	idx := blockindex.New()
	genesis := wire.BlockHeader{Timestamp: time.Unix(1231006505, 0), Bits: 0x1d00ffff}
	tip := idx.AddGenesis(&genesis)

	chain := node.NewChain(idx, nopValidator{}, 10*time.Minute)
	chain.SetActiveTip(tip)

	states := node.NewNodeStateMap()
	bans := node.NewBanList()

	return NewServer("127.0.0.1:0", states, chain, bans)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer()

	rr := httptest.NewRecorder()
	s.handleStatus(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	var got StatusInfo
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Peers != 0 {
		t.Errorf("Peers = %d, want 0", got.Peers)
	}
	if got.SyncHeight != 0 {
		t.Errorf("SyncHeight = %d, want 0 (genesis)", got.SyncHeight)
	}
}

func TestHandlePeersEmpty(t *testing.T) {
	s := newTestServer()

	rr := httptest.NewRecorder()
	s.handlePeers(rr, httptest.NewRequest(http.MethodGet, "/peers", nil))

	var got []PeerInfo
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(peers) = %d, want 0", len(got))
	}
}

func TestHandleBans(t *testing.T) {
	s := newTestServer()
	s.bans.Ban("10.0.0.1:8333", time.Hour)

	rr := httptest.NewRecorder()
	s.handleBans(rr, httptest.NewRequest(http.MethodGet, "/bans", nil))

	var got []BanInfo
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(bans) = %d, want 1", len(got))
	}
	// BanList keys bans by host, dropping the port.
	if got[0].Addr != "10.0.0.1" {
		t.Errorf("Addr = %q, want %q", got[0].Addr, "10.0.0.1")
	}
	if !got[0].ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %s, want in the future", got[0].ExpiresAt)
	}
}
