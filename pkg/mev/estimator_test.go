// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package mev

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/oracle"
)

const feed = oracle.FeedID("TOKEN/USD")

type env struct {
	estimator *Estimator
	feeds     *oracle.FeedStore
	poolID    ids.PoolID
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		poolID: ids.GenerateTestPoolID(),
		now:    time.Unix(1_700_000_000, 0),
	}
	e.feeds = oracle.NewFeedStore(oracle.FeedStoreConfig{
		StalenessTolerance: 60 * time.Second,
		Now:                func() time.Time { return e.now },
	}, log.NoOp())
	e.estimator = NewEstimator(e.feeds, Config{}, nil, log.NoOp())
	return e
}

func (e *env) publish(t *testing.T, price string, at time.Time) {
	t.Helper()
	err := e.feeds.UpdatePriceFeeds([]oracle.PriceUpdate{{
		FeedID:      feed,
		Price:       decimal.RequireFromString(price),
		Confidence:  decimal.RequireFromString("0.0001"),
		PublishTime: at,
	}}, decimal.Zero)
	require.NoError(t, err)
}

func TestEstimateZeroBelowMaterialityFloor(t *testing.T) {
	e := newEnv(t)
	e.publish(t, "1.0", e.now)

	// 5 bps deviation, floor is 10 bps.
	got := e.estimator.Estimate(e.poolID, feed,
		decimal.RequireFromString("0.9995"), decimal.RequireFromString("1000"))
	require.True(t, got.IsZero())

	// Exactly at the floor the estimate is live.
	got = e.estimator.Estimate(e.poolID, feed,
		decimal.RequireFromString("0.999"), decimal.RequireFromString("1000"))
	require.True(t, got.Equal(decimal.RequireFromString("1")))
}

func TestEstimateCappedAtVolumeFraction(t *testing.T) {
	e := newEnv(t)
	e.publish(t, "1.0", e.now)

	// 50% deviation would estimate 500 on volume 1000; capped at 5%.
	got := e.estimator.Estimate(e.poolID, feed,
		decimal.RequireFromString("0.5"), decimal.RequireFromString("1000"))
	require.True(t, got.Equal(decimal.RequireFromString("50")))
}

func TestEstimateUncappedWithinBound(t *testing.T) {
	e := newEnv(t)
	e.publish(t, "1.0", e.now)

	// 1% deviation on volume 1000 stays below the 5% cap.
	got := e.estimator.Estimate(e.poolID, feed,
		decimal.RequireFromString("0.99"), decimal.RequireFromString("1000"))
	require.True(t, got.Equal(decimal.RequireFromString("10")))
}

func TestStaleOracleFallsBackToDefault(t *testing.T) {
	e := newEnv(t)
	e.publish(t, "2.0", e.now)
	e.now = e.now.Add(2 * time.Minute)

	// The published price of 2.0 is stale; the fallback reference of 1
	// sees no deviation against an execution price of 1.
	got := e.estimator.Estimate(e.poolID, feed,
		decimal.RequireFromString("1.0"), decimal.RequireFromString("1000"))
	require.True(t, got.IsZero())

	ref := e.estimator.ReferencePrice(feed)
	require.True(t, ref.Equal(decimal.NewFromInt(1)))
}

func TestEstimateIgnoresNonPositiveVolume(t *testing.T) {
	e := newEnv(t)
	e.publish(t, "1.0", e.now)

	got := e.estimator.Estimate(e.poolID, feed,
		decimal.RequireFromString("0.5"), decimal.Zero)
	require.True(t, got.IsZero())
}

func TestTrackerAccumulates(t *testing.T) {
	e := newEnv(t)
	e.publish(t, "1.0", e.now)

	for i := 0; i < 3; i++ {
		e.estimator.Estimate(e.poolID, feed,
			decimal.RequireFromString("0.99"), decimal.RequireFromString("100"))
	}

	stats := e.estimator.Tracker().Stats(e.poolID)
	require.Equal(t, uint64(3), stats.EstimateCount)
	require.True(t, stats.TotalEstimated.Equal(decimal.RequireFromString("3")))

	other := e.estimator.Tracker().Stats(ids.GenerateTestPoolID())
	require.Zero(t, other.EstimateCount)
}
