// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr provides a concurrency-safe cache of known peer
// addresses used to seed outbound connection attempts, split into a
// "new" bucket of addresses that have not yet been connected to and a
// "tried" bucket of addresses with a successful connection history.
package addrmgr

import (
	"container/list"
	"encoding/json"
	"math"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/btcrelay/peerd/wire"
)

const (
	// newBucketSize is the maximum number of addresses tracked in the
	// new bucket before the manager starts expiring old entries.
	newBucketSize = 2500

	// triedBucketSize is the maximum number of addresses tracked in
	// the tried bucket.
	triedBucketSize = 2500

	// needAddressThreshold is the number of addresses below which the
	// manager reports that it needs more addresses.
	needAddressThreshold = 1000

	// numMissingDays is the number of days since an address was last
	// seen before it is considered vanished.
	numMissingDays = 30

	// numRetries is the number of failed connection attempts, with no
	// success, before an address is considered bad.
	numRetries = 3

	// maxFailures is the maximum number of failed attempts tolerated
	// without a recent success before an address is considered bad.
	maxFailures = 10

	// minBadDays is the number of days since the last success before
	// an address becomes eligible for the "bad" eviction check.
	minBadDays = 7

	// dumpAddressInterval is how often the address cache is persisted
	// to disk.
	dumpAddressInterval = time.Minute * 10

	peersFilename = "peers.json"
)

// Manager is a concurrency-safe cache of known peer addresses and the
// record of connection attempts made to them.
type Manager struct {
	mtx       sync.Mutex
	rand      *rand.Rand
	addrIndex map[string]*knownAddress
	addrNew   map[string]*knownAddress
	addrTried *list.List
	dataDir   string

	wg       sync.WaitGroup
	quit     chan struct{}
	started  bool
	shutdown bool
}

// New returns a new address manager that persists its cache under
// dataDir. Call Start to begin the periodic dump-to-disk goroutine.
func New(dataDir string) *Manager {
	return &Manager{
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		addrIndex: make(map[string]*knownAddress),
		addrNew:   make(map[string]*knownAddress),
		addrTried: list.New(),
		dataDir:   dataDir,
		quit:      make(chan struct{}),
	}
}

// Start loads the persisted address cache, if any, and begins the
// periodic dump-to-disk goroutine.
func (m *Manager) Start() {
	m.mtx.Lock()
	if m.started {
		m.mtx.Unlock()
		return
	}
	m.started = true
	m.mtx.Unlock()

	m.loadPeers()
	m.wg.Add(1)
	go m.addressHandler()
}

// Stop persists the address cache and stops the background goroutine.
func (m *Manager) Stop() {
	m.mtx.Lock()
	if m.shutdown {
		m.mtx.Unlock()
		return
	}
	m.shutdown = true
	m.mtx.Unlock()

	close(m.quit)
	m.wg.Wait()
}

func (m *Manager) addressHandler() {
	defer m.wg.Done()
	ticker := time.NewTicker(dumpAddressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.savePeers()
		case <-m.quit:
			m.savePeers()
			return
		}
	}
}

type addrDump struct {
	Addrs []string `json:"addrs"`
}

func (m *Manager) savePeers() {
	if m.dataDir == "" {
		return
	}
	path := filepath.Join(m.dataDir, peersFilename)
	f, err := os.Create(path)
	if err != nil {
		log.Warnf("addrmgr: unable to save address cache to %s: %v", path, err)
		return
	}
	defer f.Close()

	dump := addrDump{Addrs: m.AddressCacheFlat()}
	if err := json.NewEncoder(f).Encode(&dump); err != nil {
		log.Warnf("addrmgr: unable to encode address cache: %v", err)
	}
}

func (m *Manager) loadPeers() {
	if m.dataDir == "" {
		return
	}
	path := filepath.Join(m.dataDir, peersFilename)
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	var dump addrDump
	if err := json.NewDecoder(f).Decode(&dump); err != nil {
		log.Warnf("addrmgr: unable to decode address cache %s: %v", path, err)
		return
	}
	for _, addr := range dump.Addrs {
		m.AddAddressByIPPort(addr)
	}
	log.Infof("addrmgr: loaded %d cached addresses", len(dump.Addrs))
}

// AddAddress records a candidate address learned from srcAddr, silently
// ignoring it if it is not routable. If it is already known, a newer
// timestamp and any additional service bits are merged into the existing
// entry.
func (m *Manager) AddAddress(na, srcAddr *wire.NetAddress) {
	if !Routable(na) {
		return
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	key := Key(na)
	if ka := m.addrIndex[key]; ka != nil {
		if na.Timestamp.After(ka.na.Timestamp) {
			ka.na.Timestamp = na.Timestamp
		}
		ka.na.Services |= na.Services
		return
	}

	if len(m.addrNew) >= newBucketSize {
		m.expireNew()
	}

	naCopy := *na
	ka := &knownAddress{na: &naCopy, srcAddr: srcAddr}
	m.addrIndex[key] = ka
	m.addrNew[key] = ka
}

// AddAddresses is a convenience wrapper around AddAddress for a batch of
// addresses learned from a single addr message.
func (m *Manager) AddAddresses(addrs []*wire.NetAddress, srcAddr *wire.NetAddress) {
	for _, na := range addrs {
		m.AddAddress(na, srcAddr)
	}
}

// AddAddressByIPPort is a convenience wrapper for addresses loaded from
// the on-disk cache, which only carry an ip:port string.
func (m *Manager) AddAddressByIPPort(addrIPPort string) {
	host, portStr, err := net.SplitHostPort(addrIPPort)
	if err != nil {
		return
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return
	}
	na := &wire.NetAddress{Timestamp: time.Now(), IP: ip, Port: uint16(port)}
	m.AddAddress(na, na)
}

func (m *Manager) expireNew() {
	var oldestKey string
	var oldest *knownAddress
	for k, v := range m.addrNew {
		if v.bad() {
			delete(m.addrNew, k)
			delete(m.addrIndex, k)
			return
		}
		if oldest == nil || v.na.Timestamp.Before(oldest.na.Timestamp) {
			oldest = v
			oldestKey = k
		}
	}
	if oldest != nil {
		delete(m.addrNew, oldestKey)
		delete(m.addrIndex, oldestKey)
	}
}

func (m *Manager) pickTried() *list.Element {
	var oldest *knownAddress
	var oldestElem *list.Element
	for e := m.addrTried.Front(); e != nil; e = e.Next() {
		ka := e.Value.(*knownAddress)
		if oldest == nil || ka.na.Timestamp.Before(oldest.na.Timestamp) {
			oldest = ka
			oldestElem = e
		}
	}
	return oldestElem
}

func (m *Manager) find(na *wire.NetAddress) *knownAddress {
	return m.addrIndex[Key(na)]
}

// Attempt records that a connection attempt to addr was made, for use in
// the selection-chance heuristic.
func (m *Manager) Attempt(na *wire.NetAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if ka := m.find(na); ka != nil {
		ka.attempts++
		ka.lastattempt = time.Now()
	}
}

// Good marks addr as having completed a successful version handshake,
// resetting its failure count and promoting it from the new bucket to
// the tried bucket (evicting the oldest tried entry back to new if the
// tried bucket is full).
func (m *Manager) Good(na *wire.NetAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	ka := m.find(na)
	if ka == nil {
		return
	}
	now := time.Now()
	ka.lastsuccess = now
	ka.lastattempt = now
	ka.na.Timestamp = now
	ka.attempts = 0

	if ka.tried {
		return
	}

	key := Key(na)
	delete(m.addrNew, key)
	ka.tried = true

	if m.addrTried.Len() < triedBucketSize {
		m.addrTried.PushBack(ka)
		return
	}

	evictElem := m.pickTried()
	evict := evictElem.Value.(*knownAddress)
	evictElem.Value = ka
	evict.tried = false
	evictKey := Key(evict.na)
	m.addrNew[evictKey] = evict
}

// NumAddresses returns the total number of addresses tracked across both
// buckets.
func (m *Manager) NumAddresses() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.addrNew) + m.addrTried.Len()
}

// NeedMoreAddresses reports whether the cache is thin enough to warrant
// asking peers for more addresses.
func (m *Manager) NeedMoreAddresses() bool {
	return m.NumAddresses() < needAddressThreshold
}

// AddressCacheFlat returns a flat snapshot of every cached address key,
// safe to persist or hand to a getaddr reply builder.
func (m *Manager) AddressCacheFlat() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	out := make([]string, 0, len(m.addrNew)+m.addrTried.Len())
	for k := range m.addrNew {
		out = append(out, k)
	}
	for e := m.addrTried.Front(); e != nil; e = e.Next() {
		ka := e.Value.(*knownAddress)
		out = append(out, Key(ka.na))
	}
	return out
}

// GetAddress picks a single routable address, choosing between the new
// and tried buckets in proportion to the square root of each bucket's
// size and weighted within the chosen bucket by chance(),
// rejecting low-chance candidates probabilistically rather than always
// picking the single best one.
func (m *Manager) GetAddress() *wire.NetAddress {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	triedCount := m.addrTried.Len()
	newCount := len(m.addrNew)
	if triedCount == 0 && newCount == 0 {
		return nil
	}

	triedCorrelation := math.Sqrt(float64(triedCount)) * 50.0
	newCorrelation := math.Sqrt(float64(newCount)) * 50.0

	if (triedCorrelation+newCorrelation)*m.rand.Float64() < triedCorrelation && triedCount > 0 {
		return m.pickWeighted(m.triedSlice())
	}
	if newCount > 0 {
		return m.pickWeighted(m.newSlice())
	}
	return m.pickWeighted(m.triedSlice())
}

// GetAddresses returns a randomized sample of up to n addresses, split
// across both buckets in the same proportion GetAddress draws from, for
// building a getaddr reply. Duplicate calls will overlap; the caller is
// expected to cap n rather than rely on exhaustive coverage.
func (m *Manager) GetAddresses(n int) []*wire.NetAddress {
	m.mtx.Lock()
	all := make([]*knownAddress, 0, len(m.addrIndex))
	for _, ka := range m.addrIndex {
		all = append(all, ka)
	}
	m.mtx.Unlock()

	if len(all) == 0 {
		return nil
	}

	m.mtx.Lock()
	m.rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	m.mtx.Unlock()

	if n > len(all) {
		n = len(all)
	}
	out := make([]*wire.NetAddress, 0, n)
	for _, ka := range all[:n] {
		if !Routable(ka.na) {
			continue
		}
		out = append(out, ka.na)
	}
	return out
}

func (m *Manager) triedSlice() []*knownAddress {
	out := make([]*knownAddress, 0, m.addrTried.Len())
	for e := m.addrTried.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*knownAddress))
	}
	return out
}

func (m *Manager) newSlice() []*knownAddress {
	out := make([]*knownAddress, 0, len(m.addrNew))
	for _, ka := range m.addrNew {
		out = append(out, ka)
	}
	return out
}

func (m *Manager) pickWeighted(candidates []*knownAddress) *wire.NetAddress {
	const large = 1 << 30
	factor := 1.0
	for attempt := 0; attempt < 100; attempt++ {
		ka := candidates[m.rand.Intn(len(candidates))]
		if float64(m.rand.Intn(large)) < factor*ka.chance()*float64(large) {
			return ka.na
		}
		factor *= 1.2
	}
	return candidates[m.rand.Intn(len(candidates))].na
}
