// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mev estimates extractable value from the deviation between the
// oracle reference price and the realized execution price of a trade. The
// estimate is analytics-only: it is never the amount distributed to LPs.
package mev

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/metric"
	"github.com/mevshield/shieldpool/pkg/oracle"
)

// Defaults for the estimator; all overridable via Config.
const (
	DefaultMaterialityFloorBps = 10
	DefaultEstimateCapPct      = 5
)

var ErrUnregisteredPool = errors.New("no price feed registered for pool")

var (
	tenThousand = decimal.NewFromInt(10000)
	oneHundred  = decimal.NewFromInt(100)
)

// Config configures an Estimator
type Config struct {
	// DefaultReferencePrice is used when the oracle degrades.
	DefaultReferencePrice decimal.Decimal
	MaterialityFloorBps   int64
	EstimateCapPct        int64
}

// Estimator computes price-deviation MEV estimates per pool.
type Estimator struct {
	feed    oracle.PriceFeed
	cfg     Config
	tracker *Tracker
	metrics *metric.Metrics
	log     log.Logger
}

// NewEstimator creates an estimator over the given price feed.
func NewEstimator(feed oracle.PriceFeed, cfg Config, metrics *metric.Metrics, logger log.Logger) *Estimator {
	if cfg.DefaultReferencePrice.IsZero() {
		cfg.DefaultReferencePrice = decimal.NewFromInt(1)
	}
	if cfg.MaterialityFloorBps == 0 {
		cfg.MaterialityFloorBps = DefaultMaterialityFloorBps
	}
	if cfg.EstimateCapPct == 0 {
		cfg.EstimateCapPct = DefaultEstimateCapPct
	}
	return &Estimator{
		feed:    feed,
		cfg:     cfg,
		tracker: NewTracker(),
		metrics: metrics,
		log:     logger,
	}
}

// Tracker returns the estimator's per-pool stats tracker.
func (e *Estimator) Tracker() *Tracker {
	return e.tracker
}

// ReferencePrice fetches the oracle reference for a feed, degrading to the
// configured default when the feed is unknown, stale, or low-confidence.
func (e *Estimator) ReferencePrice(feedID oracle.FeedID) decimal.Decimal {
	data, err := e.feed.GetPrice(feedID)
	if err != nil {
		cause := "error"
		switch {
		case errors.Is(err, oracle.ErrStalePrice):
			cause = "stale"
		case errors.Is(err, oracle.ErrLowConfidence):
			cause = "low_confidence"
		case errors.Is(err, oracle.ErrUnknownFeed):
			cause = "unknown_feed"
		}
		if e.metrics != nil {
			e.metrics.OracleFallbacks.WithLabelValues(cause).Inc()
		}
		e.log.Warn("oracle degraded, using fallback reference",
			"feed", feedID, "cause", cause)
		return e.cfg.DefaultReferencePrice
	}
	return data.Price
}

// Estimate computes the MEV estimate for a trade. Deviations below the
// materiality floor estimate to zero; otherwise the estimate is
// volume * deviation, capped at EstimateCapPct of volume.
func (e *Estimator) Estimate(poolID ids.PoolID, feedID oracle.FeedID, executionPrice, volume decimal.Decimal) decimal.Decimal {
	reference := e.ReferencePrice(feedID)
	if reference.LessThanOrEqual(decimal.Zero) || volume.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	deviation := reference.Sub(executionPrice).Abs().Div(reference)
	deviationBps := deviation.Mul(tenThousand)

	if deviationBps.LessThan(decimal.NewFromInt(e.cfg.MaterialityFloorBps)) {
		return decimal.Zero
	}

	estimate := volume.Mul(deviation)
	cap := volume.Mul(decimal.NewFromInt(e.cfg.EstimateCapPct)).Div(oneHundred)
	if estimate.GreaterThan(cap) {
		estimate = cap
	}

	e.tracker.Record(poolID, estimate)
	if e.metrics != nil {
		e.metrics.EstimatesRecorded.Inc()
	}
	e.log.Debug("mev estimate recorded",
		"pool", poolID, "deviation_bps", deviationBps, "estimate", estimate)

	return estimate
}
