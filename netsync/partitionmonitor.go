// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// partitionSpanHours is the lookback window examined on each check.
	partitionSpanHours = 4
	partitionSpan      = partitionSpanHours * time.Hour

	// partitionAlertInterval throttles warnings to at most one per day.
	partitionAlertInterval = 24 * time.Hour

	// falsePositiveYears is the target false-positive rate: about one
	// spurious warning every fifty years of normal operation.
	falsePositiveYears = 50
)

// PartitionMonitor periodically checks whether the rate of new headers
// arriving on the best chain is statistically consistent with the
// network's target block spacing, to warn an operator whose node may
// have been partitioned off from the rest of the network (too few
// blocks) or is being fed a chain with an implausibly high block rate
// (too many).
type PartitionMonitor struct {
	chain         ChainView
	targetSpacing time.Duration

	mtx           sync.Mutex
	lastAlertTime time.Time
	lastWarning   string
}

// NewPartitionMonitor returns a PartitionMonitor consulting chain for the
// current best header and its ancestry.
func NewPartitionMonitor(chain ChainView, targetSpacing time.Duration) *PartitionMonitor {
	return &PartitionMonitor{chain: chain, targetSpacing: targetSpacing}
}

// Check runs one partition-likelihood evaluation. It is a no-op while the
// chain is still in initial block download, since an incomplete local
// chain is expected to look sparse. It returns the warning string if one
// was raised on this call, or "" if none was due.
func (m *PartitionMonitor) Check(now time.Time) string {
	if m.chain.IsInitialBlockDownload() {
		return ""
	}

	tip, ok := m.chain.Index().Tip()
	if !ok {
		return ""
	}

	m.mtx.Lock()
	if !m.lastAlertTime.IsZero() && now.Sub(m.lastAlertTime) < partitionAlertInterval {
		m.mtx.Unlock()
		return ""
	}
	m.mtx.Unlock()

	blocksExpected := int(partitionSpan / m.targetSpacing)
	if blocksExpected <= 0 {
		return ""
	}

	startTime := now.Add(-partitionSpan)

	idx := m.chain.Index()
	nBlocks := 0
	ni := tip
	for {
		header := idx.Header(ni)
		if header.Timestamp.Before(startTime) {
			break
		}
		nBlocks++
		parent, ok := idx.Parent(ni)
		if !ok {
			// Ran out of chain before reaching startTime; the local
			// chain is shorter than the lookback window, so there is
			// nothing meaningful to alert on yet.
			return ""
		}
		ni = parent
	}

	p := poissonPDF(nBlocks, float64(blocksExpected))

	spanSeconds := partitionSpan.Seconds()
	fiftyYearSeconds := float64(falsePositiveYears) * 365 * 24 * 60 * 60
	alertThreshold := 1.0 / (fiftyYearSeconds / spanSeconds)

	var warning string
	switch {
	case p <= alertThreshold && nBlocks < blocksExpected:
		warning = fmt.Sprintf(
			"check your network connection: %d blocks received in the last %d hours (%d expected)",
			nBlocks, partitionSpanHours, blocksExpected)
	case p <= alertThreshold && nBlocks > blocksExpected:
		warning = fmt.Sprintf(
			"abnormally high number of blocks generated: %d blocks received in the last %d hours (%d expected)",
			nBlocks, partitionSpanHours, blocksExpected)
	}

	if warning == "" {
		return ""
	}

	m.mtx.Lock()
	m.lastAlertTime = now
	m.lastWarning = warning
	m.mtx.Unlock()

	log.Warnf("partition check: %s", warning)
	return warning
}

// LastWarning returns the most recent warning raised, or "" if none has
// been raised yet.
func (m *PartitionMonitor) LastWarning() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.lastWarning
}

// poissonPDF evaluates the probability mass function of a Poisson
// distribution with mean lambda at k, computed via the log-gamma
// identity (k! == Gamma(k+1)) since the standard library has no
// distribution package of its own and nothing in the example pack
// supplies a statistics library either; this mirrors boost::math's
// poisson_distribution pdf used for the same check.
func poissonPDF(k int, lambda float64) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	logP := float64(k)*math.Log(lambda) - lambda - lgamma(float64(k)+1)
	return math.Exp(logP)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
