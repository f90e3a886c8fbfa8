// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banscore

// RateCounter is a decaying counter used to rate-limit an expensive
// per-peer request (for example repeated thin-block requests) without
// the float compare-and-swap retry loop older implementations used:
// the whole read-modify-write happens under Score's mutex in one call.
type RateCounter struct {
	score *Score
	limit uint32
}

// NewRateCounter returns a RateCounter that decays with the given
// halflife and lifetime (seconds) and trips once the decayed count
// reaches limit.
func NewRateCounter(halflife, lifetime int64, limit uint32) *RateCounter {
	return &RateCounter{score: NewScore(halflife, lifetime), limit: limit}
}

// Bump increments the counter by one and reports whether the decayed
// count has reached the configured limit.
func (c *RateCounter) Bump() (exceeded bool, count uint32) {
	count = c.score.Increase(0, 1)
	return count >= c.limit, count
}

// Count returns the current decayed count without incrementing it.
func (c *RateCounter) Count() uint32 {
	return c.score.Int()
}

// Reset clears the counter.
func (c *RateCounter) Reset() {
	c.score.Reset()
}
