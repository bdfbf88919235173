// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rewards distributes cleared auction proceeds between the pool's
// liquidity providers and the protocol treasury.
package rewards

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/metric"
	"github.com/mevshield/shieldpool/pkg/storage"
	"github.com/mevshield/shieldpool/pkg/vault"
)

const (
	// DefaultLPSharePct is the percentage of each distribution accrued to
	// liquidity providers; the remainder goes to the protocol treasury.
	DefaultLPSharePct = 90

	// valueScale is the decimal precision of reward accounting. Shares are
	// floored at this scale so the protocol share absorbs rounding dust.
	valueScale = 18
)

var (
	ErrUnknownPool     = errors.New("unknown pool")
	ErrNoLiquidity     = errors.New("pool has no registered liquidity")
	ErrNothingToVest   = errors.New("nothing to distribute")
	ErrNegativeChange  = errors.New("liquidity change exceeds provider stake")
	ErrInvalidSharePct = errors.New("lp share percent out of range")
)

// DistributionRecord is the audit-trail entry persisted per distribution.
type DistributionRecord struct {
	PoolID        ids.PoolID      `json:"pool_id"`
	Round         uint64          `json:"round"`
	Winner        ids.Address     `json:"winner"`
	Amount        decimal.Decimal `json:"amount"`
	LPShare       decimal.Decimal `json:"lp_share"`
	ProtocolShare decimal.Decimal `json:"protocol_share"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PoolLedger is the externally visible per-pool accounting snapshot.
type PoolLedger struct {
	PoolID          ids.PoolID      `json:"pool_id"`
	LPAccrued       decimal.Decimal `json:"lp_accrued"`
	ProtocolAccrued decimal.Decimal `json:"protocol_accrued"`
	Carry           decimal.Decimal `json:"carry"`
	Distributions   uint64          `json:"distributions"`
	TotalLiquidity  decimal.Decimal `json:"total_liquidity"`
}

type poolState struct {
	lpAccrued       decimal.Decimal
	protocolAccrued decimal.Decimal
	// carry is pro-rata flooring dust held back for the next distribution.
	carry         decimal.Decimal
	distributions uint64
	liquidity     map[ids.Address]decimal.Decimal
	totalLiq      decimal.Decimal
}

// Ledger splits auction proceeds LPSharePct/(100-LPSharePct) between the
// pool's liquidity providers and the protocol treasury. LP shares are
// credited as pull-based claims in the vault; the protocol share moves to
// the treasury account immediately.
type Ledger struct {
	mu       sync.Mutex
	pools    map[ids.PoolID]*poolState
	vault    *vault.Vault
	store    *storage.Storage
	treasury ids.Address
	sharePct int64
	metrics  *metric.Metrics
	log      log.Logger
}

// NewLedger creates a reward ledger. store may be nil to disable the
// audit trail.
func NewLedger(v *vault.Vault, store *storage.Storage, treasury ids.Address, sharePct int64, metrics *metric.Metrics, logger log.Logger) (*Ledger, error) {
	if sharePct < 0 || sharePct > 100 {
		return nil, ErrInvalidSharePct
	}
	if sharePct == 0 {
		sharePct = DefaultLPSharePct
	}
	return &Ledger{
		pools:    make(map[ids.PoolID]*poolState),
		vault:    v,
		store:    store,
		treasury: treasury,
		sharePct: sharePct,
		metrics:  metrics,
		log:      logger,
	}, nil
}

func (l *Ledger) pool(poolID ids.PoolID) *poolState {
	ps, ok := l.pools[poolID]
	if !ok {
		ps = &poolState{
			lpAccrued:       decimal.Zero,
			protocolAccrued: decimal.Zero,
			carry:           decimal.Zero,
			liquidity:       make(map[ids.Address]decimal.Decimal),
			totalLiq:        decimal.Zero,
		}
		l.pools[poolID] = ps
	}
	return ps
}

// AdjustLiquidity records a liquidity provider's stake change in a pool.
// delta may be negative for withdrawals.
func (l *Ledger) AdjustLiquidity(poolID ids.PoolID, provider ids.Address, delta decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ps := l.pool(poolID)
	next := ps.liquidity[provider].Add(delta)
	if next.IsNegative() {
		return ErrNegativeChange
	}
	if next.IsZero() {
		delete(ps.liquidity, provider)
	} else {
		ps.liquidity[provider] = next
	}
	ps.totalLiq = ps.totalLiq.Add(delta)
	return nil
}

// Distribute splits a cleared bid amount for a round. The LP share is
// floored at the value scale; the protocol share is the exact remainder so
// the two always sum to the full amount.
func (l *Ledger) Distribute(poolID ids.PoolID, round uint64, winner ids.Address, amount decimal.Decimal) (lpShare, protocolShare decimal.Decimal, err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrNothingToVest
	}

	lpShare = amount.Mul(decimal.NewFromInt(l.sharePct)).
		Div(decimal.NewFromInt(100)).
		RoundFloor(valueScale)
	protocolShare = amount.Sub(lpShare)

	escrow := vault.EscrowAddress(poolID)

	l.mu.Lock()
	defer l.mu.Unlock()
	ps := l.pool(poolID)

	// Pro-rata credit of the LP share plus any dust carried from earlier
	// rounds. Per-provider shares are floored; the new remainder carries.
	distributable := lpShare.Add(ps.carry)
	credited := decimal.Zero
	type credit struct {
		provider ids.Address
		amount   decimal.Decimal
	}
	var credits []credit
	if ps.totalLiq.GreaterThan(decimal.Zero) {
		for provider, stake := range ps.liquidity {
			share := distributable.Mul(stake).Div(ps.totalLiq).RoundFloor(valueScale)
			if share.GreaterThan(decimal.Zero) {
				credits = append(credits, credit{provider, share})
				credited = credited.Add(share)
			}
		}
	}

	// Move funds before touching the accounting so a failed transfer never
	// leaves a snapshot claiming value that was not paid out.
	if protocolShare.GreaterThan(decimal.Zero) {
		if err := l.vault.Move(escrow, l.treasury, protocolShare); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("protocol share: %w", err)
		}
	}
	for _, c := range credits {
		if err := l.vault.CreditClaim(escrow, c.provider, c.amount); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("lp credit: %w", err)
		}
	}

	ps.lpAccrued = ps.lpAccrued.Add(lpShare)
	ps.protocolAccrued = ps.protocolAccrued.Add(protocolShare)
	ps.carry = distributable.Sub(credited)
	ps.distributions++
	seq := ps.distributions

	if l.metrics != nil {
		l.metrics.RewardsDistributed.Inc()
	}
	l.log.Info("rewards distributed",
		"pool", poolID, "round", round, "winner", winner,
		"amount", amount, "lp_share", lpShare, "protocol_share", protocolShare)

	if l.store != nil {
		rec := DistributionRecord{
			PoolID:        poolID,
			Round:         round,
			Winner:        winner,
			Amount:        amount,
			LPShare:       lpShare,
			ProtocolShare: protocolShare,
			Timestamp:     time.Now().UTC(),
		}
		if data, err := json.Marshal(rec); err == nil {
			key := fmt.Sprintf("rewards/%s/%016d", poolID, seq)
			if err := l.store.Put([]byte(key), data); err != nil {
				l.log.Warn("audit record not persisted", "pool", poolID, "error", err)
			}
		}
	}

	return lpShare, protocolShare, nil
}

// Snapshot returns the accounting snapshot for a pool.
func (l *Ledger) Snapshot(poolID ids.PoolID) (PoolLedger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ps, ok := l.pools[poolID]
	if !ok {
		return PoolLedger{}, ErrUnknownPool
	}
	return PoolLedger{
		PoolID:          poolID,
		LPAccrued:       ps.lpAccrued,
		ProtocolAccrued: ps.protocolAccrued,
		Carry:           ps.carry,
		Distributions:   ps.distributions,
		TotalLiquidity:  ps.totalLiq,
	}, nil
}

// History returns the persisted audit trail for a pool, oldest first.
func (l *Ledger) History(poolID ids.PoolID) ([]DistributionRecord, error) {
	if l.store == nil {
		return nil, nil
	}
	pairs, err := l.store.List([]byte(fmt.Sprintf("rewards/%s/", poolID)))
	if err != nil {
		return nil, err
	}
	records := make([]DistributionRecord, 0, len(pairs))
	for _, kv := range pairs {
		var rec DistributionRecord
		if err := json.Unmarshal(kv[1], &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
