// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"

	"github.com/btcrelay/peerd/peer"
)

// NodeStateMap is the registry of live peer connections, keyed by peer
// ID. Every other component reaches a live *peer.Peer only through this
// map, so InitializeNode/FinalizeNode are the single choke point for
// peer lifecycle bookkeeping (preferred-download counters, in-flight
// release) that must happen exactly once per connection. Grounded on the
// teacher's server.go peerState.peers map and its
// handleAddPeerMsg/handleDonePeerMsg pair.
type NodeStateMap struct {
	mtx   sync.RWMutex
	peers map[int32]*peer.Peer
}

// NewNodeStateMap returns an empty registry.
func NewNodeStateMap() *NodeStateMap {
	return &NodeStateMap{peers: make(map[int32]*peer.Peer)}
}

// InitializeNode registers p as live.
func (m *NodeStateMap) InitializeNode(p *peer.Peer) {
	m.mtx.Lock()
	m.peers[p.ID()] = p
	m.mtx.Unlock()
}

// FinalizeNode removes p from the registry.
func (m *NodeStateMap) FinalizeNode(p *peer.Peer) {
	m.mtx.Lock()
	delete(m.peers, p.ID())
	m.mtx.Unlock()
}

// Lookup returns the live peer with the given ID, if any.
func (m *NodeStateMap) Lookup(id int32) (*peer.Peer, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	p, ok := m.peers[id]
	return p, ok
}

// ByAddr returns the live peer connected to addr, if any.
func (m *NodeStateMap) ByAddr(addr string) (*peer.Peer, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	for _, p := range m.peers {
		if p.Addr() == addr {
			return p, true
		}
	}
	return nil, false
}

// Peers returns a snapshot of every currently live peer, safe to range
// over without holding the map's lock.
func (m *NodeStateMap) Peers() []*peer.Peer {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	out := make([]*peer.Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}

// ConnectedCount returns the number of currently live peers.
func (m *NodeStateMap) ConnectedCount() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.peers)
}
