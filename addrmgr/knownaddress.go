// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"time"

	"github.com/btcrelay/peerd/wire"
)

// knownAddress tracks information about a known network address that is
// used to determine how viable a candidate it is for outbound connection
// selection.
type knownAddress struct {
	na          *wire.NetAddress
	srcAddr     *wire.NetAddress
	attempts    int
	lastattempt time.Time
	lastsuccess time.Time
	tried       bool
}

// NetAddress returns the underlying wire.NetAddress.
func (ka *knownAddress) NetAddress() *wire.NetAddress {
	return ka.na
}

// LastAttempt returns the last time a connection to this address was
// attempted.
func (ka *knownAddress) LastAttempt() time.Time {
	return ka.lastattempt
}

// chance returns the selection probability for a known address. The
// priority depends upon how recently the address has been seen, how
// recently it was last attempted and how often attempts to connect to it
// have failed.
func (ka *knownAddress) chance() float64 {
	now := time.Now()
	lastSeen := now.Sub(ka.na.Timestamp)
	lastAttempt := now.Sub(ka.lastattempt)

	if lastSeen < 0 {
		lastSeen = 0
	}
	if lastAttempt < 0 {
		lastAttempt = 0
	}

	c := 600.0 / (600.0 + lastSeen.Seconds())

	if lastAttempt > 10*time.Minute {
		c *= 0.01
	}

	if ka.attempts > 0 {
		c /= float64(ka.attempts) * 1.5
	}

	return c
}

// bad returns true if the address is considered worthless and not worth
// keeping in the address manager: it claims to be from the future, hasn't
// been seen in over a month, has never succeeded after numRetries
// attempts, or has failed maxFailures times without succeeding recently.
func (ka *knownAddress) bad() bool {
	if ka.lastattempt.After(time.Now().Add(-1 * time.Minute)) {
		return false
	}

	if ka.na.Timestamp.After(time.Now().Add(10 * time.Minute)) {
		return true
	}

	if ka.na.Timestamp.Before(time.Now().Add(-numMissingDays * 24 * time.Hour)) {
		return true
	}

	if ka.lastsuccess.IsZero() && ka.attempts >= numRetries {
		return true
	}

	if !ka.lastsuccess.After(time.Now().Add(-minBadDays*24*time.Hour)) &&
		ka.attempts >= maxFailures {
		return true
	}

	return false
}
