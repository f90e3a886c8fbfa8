// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpc serves a small read-only JSON status surface over HTTP:
// peer list, ban list, and sync height. It intentionally does not carry
// the teacher's rpcserver.go/btcjson command architecture (wallet RPCs,
// mining RPCs, full JSON-RPC 1.0 command dispatch) since nothing in this
// module needs to be controlled remotely, only observed. net/http and
// encoding/json are used directly rather than reaching for btcjson,
// since btcjson exists to marshal that larger command set this package
// deliberately does not implement.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/btcrelay/peerd/node"
	"github.com/btcrelay/peerd/peer"
)

// PeerInfo is the read-only view of one connected peer returned by
// /peers.
type PeerInfo struct {
	ID              int32  `json:"id"`
	Addr            string `json:"addr"`
	Inbound         bool   `json:"inbound"`
	ProtocolVersion uint32 `json:"protocolversion"`
	UserAgent       string `json:"useragent"`
	StartingHeight  int32  `json:"startingheight"`
	LastBlock       int32  `json:"lastblock"`
}

// StatusInfo is the top-level snapshot returned by /status.
type StatusInfo struct {
	Peers                  int   `json:"peers"`
	SyncHeight             int32 `json:"syncheight"`
	IsInitialBlockDownload bool  `json:"initialblockdownload"`
}

// BanInfo is one entry returned by /bans.
type BanInfo struct {
	Addr      string    `json:"addr"`
	ExpiresAt time.Time `json:"expiresat"`
}

// Server exposes /status, /peers, and /bans as read-only JSON endpoints.
// Grounded on the teacher's rpcserver.go net/http plumbing, stripped down
// to the fraction of it a read-only status page needs.
type Server struct {
	states *node.NodeStateMap
	chain  *node.Chain
	bans   *node.BanList

	httpServer *http.Server
}

// NewServer returns an rpc.Server reading from the given collaborators.
func NewServer(addr string, states *node.NodeStateMap, chain *node.Chain, bans *node.BanList) *Server {
	s := &Server{states: states, chain: chain, bans: bans}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/bans", s.handleBans)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background and returns immediately; the
// listener is bound inside that goroutine and runs until Stop calls
// Shutdown. A failure to bind is logged, not returned.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("rpc server stopped: %v", err)
		}
	}()
}

// Stop shuts the HTTP listener down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	idx := s.chain.Index()
	status := StatusInfo{
		Peers:                  s.states.ConnectedCount(),
		SyncHeight:             idx.Height(s.chain.Tip()),
		IsInitialBlockDownload: s.chain.IsInitialBlockDownload(),
	}
	writeJSON(w, status)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := s.states.Peers()
	infos := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, peerInfo(p))
	}
	writeJSON(w, infos)
}

func peerInfo(p *peer.Peer) PeerInfo {
	return PeerInfo{
		ID:              p.ID(),
		Addr:            p.Addr(),
		Inbound:         p.Inbound(),
		ProtocolVersion: p.ProtocolVersion(),
		UserAgent:       p.UserAgent(),
		StartingHeight:  p.StartingHeight(),
		LastBlock:       p.LastBlock(),
	}
}

func (s *Server) handleBans(w http.ResponseWriter, r *http.Request) {
	snapshot := s.bans.Snapshot()
	infos := make([]BanInfo, 0, len(snapshot))
	for addr, expires := range snapshot {
		infos = append(infos, BanInfo{Addr: addr, ExpiresAt: expires})
	}
	writeJSON(w, infos)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
