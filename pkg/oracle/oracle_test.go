// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/shieldpool/pkg/log"
)

const feed = FeedID("TOKEN/USD")

func newStore(now *time.Time) *FeedStore {
	return NewFeedStore(FeedStoreConfig{
		StalenessTolerance: 60 * time.Second,
		MaxConfidenceBps:   200,
		Now:                func() time.Time { return *now },
	}, log.NoOp())
}

func publish(t *testing.T, s *FeedStore, price, conf string, at time.Time) {
	t.Helper()
	err := s.UpdatePriceFeeds([]PriceUpdate{{
		FeedID:      feed,
		Price:       decimal.RequireFromString(price),
		Confidence:  decimal.RequireFromString(conf),
		PublishTime: at,
	}}, decimal.Zero)
	require.NoError(t, err)
}

func TestGetPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(&now)
	publish(t, s, "1.25", "0.001", now)

	data, err := s.GetPrice(feed)
	require.NoError(t, err)
	require.True(t, data.Price.Equal(decimal.RequireFromString("1.25")))
}

func TestUnknownFeed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(&now)

	_, err := s.GetPrice(FeedID("NOPE/USD"))
	require.ErrorIs(t, err, ErrUnknownFeed)
}

func TestStalenessGate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(&now)
	publish(t, s, "1.25", "0.001", now)

	now = now.Add(61 * time.Second)
	_, err := s.GetPrice(feed)
	require.ErrorIs(t, err, ErrStalePrice)

	// Exactly at the tolerance the price is still good.
	now = now.Add(-time.Second)
	_, err = s.GetPrice(feed)
	require.NoError(t, err)
}

func TestConfidenceGate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(&now)

	// Confidence of 3% of price exceeds the 200 bps gate.
	publish(t, s, "1.0", "0.03", now)
	_, err := s.GetPrice(feed)
	require.ErrorIs(t, err, ErrLowConfidence)
}

func TestUpdateFeeGate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewFeedStore(FeedStoreConfig{
		UpdateFee: decimal.RequireFromString("0.01"),
		Now:       func() time.Time { return now },
	}, log.NoOp())

	updates := []PriceUpdate{
		{FeedID: feed, Price: decimal.New(1, 0), PublishTime: now},
		{FeedID: FeedID("OTHER/USD"), Price: decimal.New(2, 0), PublishTime: now},
	}
	err := s.UpdatePriceFeeds(updates, decimal.RequireFromString("0.01"))
	require.ErrorIs(t, err, ErrInsufficientFee)

	require.NoError(t, s.UpdatePriceFeeds(updates, decimal.RequireFromString("0.02")))
}

func TestOlderUpdateIgnored(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(&now)
	publish(t, s, "2.0", "0.001", now)
	publish(t, s, "1.0", "0.001", now.Add(-time.Minute))

	data, err := s.GetPrice(feed)
	require.NoError(t, err)
	require.True(t, data.Price.Equal(decimal.RequireFromString("2.0")))
}
