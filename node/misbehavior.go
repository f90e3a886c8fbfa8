// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"time"

	"github.com/btcrelay/peerd/banscore"
	"github.com/btcrelay/peerd/peer"
)

// Banner refuses future connections from addr for the given duration. A
// *BanList satisfies it; tests can supply a fake to assert on calls
// without standing up a whole Node.
type Banner interface {
	Ban(addr string, d time.Duration)
}

// MisbehaviorTracker applies protocol-violation penalties to a peer's
// banscore.Score and, once it crosses banscore.BanThreshold, bans and
// disconnects — unless the peer is whitelisted, which is exempt from
// both per spec's whitelist-exemption rule. Grounded on the teacher's
// addBanScore (dynamicbanscore.go caller in peer.go) generalized into its
// own component per the dispatcher/sender split.
type MisbehaviorTracker struct {
	banner      Banner
	banDuration time.Duration
}

// NewMisbehaviorTracker returns a tracker that bans through banner for
// banDuration once a peer's score reaches banscore.BanThreshold.
func NewMisbehaviorTracker(banner Banner, banDuration time.Duration) *MisbehaviorTracker {
	return &MisbehaviorTracker{banner: banner, banDuration: banDuration}
}

// Misbehaving adds points to p's score for reason and bans or warns as
// the resulting score crosses banscore.WarnThreshold or
// banscore.BanThreshold. Whitelisted peers still have their score
// tracked (for diagnostics) but are never banned or disconnected for it.
func (t *MisbehaviorTracker) Misbehaving(p *peer.Peer, points uint32, reason string) {
	score := p.Misbehaving(points)
	if p.Whitelisted() {
		log.Debugf("misbehaving whitelisted peer %s: %s (score %d, not enforced)", p, reason, score)
		return
	}

	switch {
	case score >= banscore.BanThreshold:
		log.Warnf("banning peer %s: %s (score %d)", p, reason, score)
		if t.banner != nil {
			t.banner.Ban(p.Addr(), t.banDuration)
		}
		p.RequestDisconnect()
	case score >= banscore.WarnThreshold:
		log.Warnf("misbehaving peer %s: %s (score %d)", p, reason, score)
	default:
		log.Debugf("misbehaving peer %s: %s (score %d)", p, reason, score)
	}
}

// Ban immediately bans p for d, bypassing the score entirely. Used for
// envelope-level violations (an unrecognized network magic) that warrant
// an instant ban regardless of accumulated score.
func (t *MisbehaviorTracker) Ban(p *peer.Peer, d time.Duration, reason string) {
	if p.Whitelisted() {
		log.Debugf("not banning whitelisted peer %s: %s", p, reason)
		return
	}
	log.Warnf("banning peer %s: %s", p, reason)
	if t.banner != nil {
		t.banner.Ban(p.Addr(), d)
	}
	p.RequestDisconnect()
}
