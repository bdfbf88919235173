// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package mev

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/ids"
)

// Tracker accumulates per-pool estimate totals for observability.
type Tracker struct {
	// Real-time counters
	TotalEstimates atomic.Uint64

	mu     sync.RWMutex
	totals map[ids.PoolID]decimal.Decimal
	counts map[ids.PoolID]uint64
}

// PoolStats is a snapshot of one pool's estimate history.
type PoolStats struct {
	PoolID         ids.PoolID      `json:"pool_id"`
	TotalEstimated decimal.Decimal `json:"total_estimated"`
	EstimateCount  uint64          `json:"estimate_count"`
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		totals: make(map[ids.PoolID]decimal.Decimal),
		counts: make(map[ids.PoolID]uint64),
	}
}

// Record adds an estimate to a pool's running total.
func (t *Tracker) Record(poolID ids.PoolID, estimate decimal.Decimal) {
	t.TotalEstimates.Add(1)

	t.mu.Lock()
	t.totals[poolID] = t.totals[poolID].Add(estimate)
	t.counts[poolID]++
	t.mu.Unlock()
}

// Stats returns the snapshot for one pool.
func (t *Tracker) Stats(poolID ids.PoolID) PoolStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return PoolStats{
		PoolID:         poolID,
		TotalEstimated: t.totals[poolID],
		EstimateCount:  t.counts[poolID],
	}
}
