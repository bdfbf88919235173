// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/log"
)

var (
	ErrUnknownFeed     = errors.New("unknown price feed")
	ErrStalePrice      = errors.New("price is stale")
	ErrLowConfidence   = errors.New("price confidence too low")
	ErrInsufficientFee = errors.New("insufficient update fee")
)

// FeedID identifies a price feed
type FeedID string

// PriceData is a single published price point
type PriceData struct {
	Price       decimal.Decimal `json:"price"`
	Confidence  decimal.Decimal `json:"confidence"` // absolute confidence interval around Price
	Exponent    int32           `json:"exponent"`
	PublishTime time.Time       `json:"publish_time"`
}

// PriceUpdate carries a new price point for a feed
type PriceUpdate struct {
	FeedID      FeedID          `json:"feed_id"`
	Price       decimal.Decimal `json:"price"`
	Confidence  decimal.Decimal `json:"confidence"`
	Exponent    int32           `json:"exponent"`
	PublishTime time.Time       `json:"publish_time"`
}

// PriceFeed provides external reference prices.
// GetPrice fails when the feed is unknown, stale, or low-confidence.
type PriceFeed interface {
	GetPrice(feedID FeedID) (PriceData, error)
	UpdatePriceFeeds(updates []PriceUpdate, fee decimal.Decimal) error
}

// FeedStore is an in-memory PriceFeed with staleness and confidence gating.
type FeedStore struct {
	mu                 sync.RWMutex
	feeds              map[FeedID]PriceData
	stalenessTolerance time.Duration
	maxConfidenceBps   int64 // reject when confidence/price exceeds this many bps
	updateFee          decimal.Decimal
	now                func() time.Time
	log                log.Logger
}

// FeedStoreConfig configures a FeedStore
type FeedStoreConfig struct {
	StalenessTolerance time.Duration
	MaxConfidenceBps   int64
	UpdateFee          decimal.Decimal
	Now                func() time.Time
}

// NewFeedStore creates a new in-memory price feed store
func NewFeedStore(cfg FeedStoreConfig, logger log.Logger) *FeedStore {
	if cfg.StalenessTolerance == 0 {
		cfg.StalenessTolerance = 60 * time.Second
	}
	if cfg.MaxConfidenceBps == 0 {
		cfg.MaxConfidenceBps = 200
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FeedStore{
		feeds:              make(map[FeedID]PriceData),
		stalenessTolerance: cfg.StalenessTolerance,
		maxConfidenceBps:   cfg.MaxConfidenceBps,
		updateFee:          cfg.UpdateFee,
		now:                cfg.Now,
		log:                logger,
	}
}

// GetPrice returns the current price for a feed.
func (s *FeedStore) GetPrice(feedID FeedID) (PriceData, error) {
	s.mu.RLock()
	data, ok := s.feeds[feedID]
	s.mu.RUnlock()

	if !ok {
		return PriceData{}, ErrUnknownFeed
	}

	if s.now().Sub(data.PublishTime) > s.stalenessTolerance {
		return PriceData{}, ErrStalePrice
	}

	if data.Price.IsPositive() {
		confBps := data.Confidence.Div(data.Price).Mul(decimal.NewFromInt(10000))
		if confBps.GreaterThan(decimal.NewFromInt(s.maxConfidenceBps)) {
			return PriceData{}, ErrLowConfidence
		}
	}

	return data, nil
}

// UpdatePriceFeeds ingests new price points. Fee-gated.
func (s *FeedStore) UpdatePriceFeeds(updates []PriceUpdate, fee decimal.Decimal) error {
	required := s.updateFee.Mul(decimal.NewFromInt(int64(len(updates))))
	if fee.LessThan(required) {
		return ErrInsufficientFee
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		// Never regress a feed to an older publish time.
		if existing, ok := s.feeds[u.FeedID]; ok && existing.PublishTime.After(u.PublishTime) {
			continue
		}
		s.feeds[u.FeedID] = PriceData{
			Price:       u.Price,
			Confidence:  u.Confidence,
			Exponent:    u.Exponent,
			PublishTime: u.PublishTime,
		}
	}

	s.log.Debug("price feeds updated", "count", len(updates))
	return nil
}
