// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package rewards

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/storage"
	"github.com/mevshield/shieldpool/pkg/vault"
)

type env struct {
	ledger   *Ledger
	vault    *vault.Vault
	treasury ids.Address
	poolID   ids.PoolID
	escrow   ids.Address
}

func newEnv(t *testing.T, store *storage.Storage) *env {
	t.Helper()
	e := &env{
		vault:    vault.New(log.NoOp()),
		treasury: ids.GenerateTestAddress(),
		poolID:   ids.GenerateTestPoolID(),
	}
	e.escrow = vault.EscrowAddress(e.poolID)

	var err error
	e.ledger, err = NewLedger(e.vault, store, e.treasury, 90, nil, log.NoOp())
	require.NoError(t, err)
	return e
}

func (e *env) escrowFunds(t *testing.T, amount string) {
	t.Helper()
	require.NoError(t, e.vault.Deposit(e.escrow, decimal.RequireFromString(amount)))
}

func TestSplitSumsExactly(t *testing.T) {
	e := newEnv(t, nil)

	for _, amt := range []string{"0.01", "1", "0.000000000000000003", "123.456789"} {
		amount := decimal.RequireFromString(amt)
		e.escrowFunds(t, amt)

		lp, protocol, err := e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), amount)
		require.NoError(t, err)
		require.True(t, lp.Add(protocol).Equal(amount), "split of %s lost value", amt)
		require.True(t, lp.Equal(amount.Mul(decimal.NewFromInt(90)).Div(decimal.NewFromInt(100)).RoundFloor(18)))
	}
}

func TestDefaultNinetyTenSplit(t *testing.T) {
	e := newEnv(t, nil)
	e.escrowFunds(t, "1")

	lp, protocol, err := e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), decimal.RequireFromString("1"))
	require.NoError(t, err)
	require.True(t, lp.Equal(decimal.RequireFromString("0.9")))
	require.True(t, protocol.Equal(decimal.RequireFromString("0.1")))

	// Protocol share moved to the treasury immediately.
	require.True(t, e.vault.Balance(e.treasury).Equal(decimal.RequireFromString("0.1")))
}

func TestProRataCredits(t *testing.T) {
	e := newEnv(t, nil)
	lpA := ids.GenerateTestAddress()
	lpB := ids.GenerateTestAddress()

	require.NoError(t, e.ledger.AdjustLiquidity(e.poolID, lpA, decimal.RequireFromString("300")))
	require.NoError(t, e.ledger.AdjustLiquidity(e.poolID, lpB, decimal.RequireFromString("100")))

	e.escrowFunds(t, "1")
	_, _, err := e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), decimal.RequireFromString("1"))
	require.NoError(t, err)

	// 0.9 split 3:1.
	require.True(t, e.vault.Claimable(lpA).Equal(decimal.RequireFromString("0.675")))
	require.True(t, e.vault.Claimable(lpB).Equal(decimal.RequireFromString("0.225")))
}

func TestNoLiquidityCarriesForward(t *testing.T) {
	e := newEnv(t, nil)
	e.escrowFunds(t, "1")

	_, _, err := e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), decimal.RequireFromString("1"))
	require.NoError(t, err)

	snap, err := e.ledger.Snapshot(e.poolID)
	require.NoError(t, err)
	require.True(t, snap.Carry.Equal(decimal.RequireFromString("0.9")))

	// Once an LP registers, the carried amount pays out with the next
	// distribution.
	lp := ids.GenerateTestAddress()
	require.NoError(t, e.ledger.AdjustLiquidity(e.poolID, lp, decimal.RequireFromString("10")))
	e.escrowFunds(t, "1")
	_, _, err = e.ledger.Distribute(e.poolID, 2, ids.GenerateTestAddress(), decimal.RequireFromString("1"))
	require.NoError(t, err)
	require.True(t, e.vault.Claimable(lp).Equal(decimal.RequireFromString("1.8")))
}

func TestLiquidityWithdrawal(t *testing.T) {
	e := newEnv(t, nil)
	lp := ids.GenerateTestAddress()

	require.NoError(t, e.ledger.AdjustLiquidity(e.poolID, lp, decimal.RequireFromString("100")))
	require.NoError(t, e.ledger.AdjustLiquidity(e.poolID, lp, decimal.RequireFromString("-40")))

	err := e.ledger.AdjustLiquidity(e.poolID, lp, decimal.RequireFromString("-100"))
	require.ErrorIs(t, err, ErrNegativeChange)

	snap, err := e.ledger.Snapshot(e.poolID)
	require.NoError(t, err)
	require.True(t, snap.TotalLiquidity.Equal(decimal.RequireFromString("60")))
}

func TestFailedDistributionLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t, nil)
	lp := ids.GenerateTestAddress()
	require.NoError(t, e.ledger.AdjustLiquidity(e.poolID, lp, decimal.RequireFromString("10")))

	// Escrow never funded: the protocol transfer fails, so no accrual,
	// carry, or distribution count may be recorded.
	_, _, err := e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), decimal.RequireFromString("1"))
	require.Error(t, err)

	snap, err := e.ledger.Snapshot(e.poolID)
	require.NoError(t, err)
	require.True(t, snap.LPAccrued.IsZero())
	require.True(t, snap.ProtocolAccrued.IsZero())
	require.True(t, snap.Carry.IsZero())
	require.Equal(t, uint64(0), snap.Distributions)
	require.True(t, e.vault.Claimable(lp).IsZero())

	// A funded retry then succeeds with the full amount accounted.
	e.escrowFunds(t, "1")
	_, _, err = e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), decimal.RequireFromString("1"))
	require.NoError(t, err)

	snap, err = e.ledger.Snapshot(e.poolID)
	require.NoError(t, err)
	require.True(t, snap.LPAccrued.Equal(decimal.RequireFromString("0.9")))
	require.Equal(t, uint64(1), snap.Distributions)
}

func TestNonPositiveDistributionRejected(t *testing.T) {
	e := newEnv(t, nil)

	_, _, err := e.ledger.Distribute(e.poolID, 1, ids.GenerateTestAddress(), decimal.Zero)
	require.ErrorIs(t, err, ErrNothingToVest)
}

func TestUnknownPoolSnapshot(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.ledger.Snapshot(ids.GenerateTestPoolID())
	require.ErrorIs(t, err, ErrUnknownPool)
}

func TestInvalidSharePct(t *testing.T) {
	v := vault.New(log.NoOp())
	_, err := NewLedger(v, nil, ids.GenerateTestAddress(), 101, nil, log.NoOp())
	require.ErrorIs(t, err, ErrInvalidSharePct)
}

func TestAuditTrail(t *testing.T) {
	store, err := storage.NewStorage("memory", "")
	require.NoError(t, err)
	defer store.Close()

	e := newEnv(t, store)
	winner := ids.GenerateTestAddress()

	for i := 1; i <= 3; i++ {
		e.escrowFunds(t, "1")
		_, _, err := e.ledger.Distribute(e.poolID, uint64(i), winner, decimal.RequireFromString("1"))
		require.NoError(t, err)
	}

	records, err := e.ledger.History(e.poolID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, uint64(1), records[0].Round)
	require.Equal(t, uint64(3), records[2].Round)
	require.Equal(t, winner, records[1].Winner)
}
