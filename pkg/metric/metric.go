// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the shieldpool auction core
type Metrics struct {
	registry *prometheus.Registry

	// Auction metrics
	RoundsOpened    prometheus.Counter
	RoundsFinalized prometheus.Counter
	BidsAccepted    prometheus.Counter
	BidsRejected    *prometheus.CounterVec
	EncryptedBids   prometheus.Counter
	RefundsIssued   prometheus.Counter

	// Rights metrics
	RightsGranted prometheus.Counter
	RightsDenied  *prometheus.CounterVec

	// Estimator metrics
	EstimatesRecorded prometheus.Counter
	OracleFallbacks   *prometheus.CounterVec

	// Degradation metrics
	DecryptFailures prometheus.Counter

	// Reward metrics
	RewardsDistributed prometheus.Counter

	// Performance metrics
	FinalizeDuration prometheus.Histogram
	BidLatency       prometheus.Histogram
}

// NewMetrics creates a new metrics instance on a private registry
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RoundsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "auction_rounds_opened_total",
			Help:      "Total number of auction rounds opened",
		}),
		RoundsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "auction_rounds_finalized_total",
			Help:      "Total number of auction rounds finalized",
		}),
		BidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "auction_bids_accepted_total",
			Help:      "Total number of plaintext bids accepted",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "auction_bids_rejected_total",
			Help:      "Total number of bids rejected by reason",
		}, []string{"reason"}),
		EncryptedBids: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "auction_encrypted_bids_total",
			Help:      "Total number of encrypted bids recorded",
		}),
		RefundsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "auction_refunds_issued_total",
			Help:      "Total number of displaced-bidder refunds issued",
		}),
		RightsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "rights_granted_total",
			Help:      "Total number of execution-rights grants",
		}),
		RightsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "rights_denied_total",
			Help:      "Total number of execution-rights denials by reason",
		}, []string{"reason"}),
		EstimatesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "mev_estimates_recorded_total",
			Help:      "Total number of MEV estimates recorded",
		}),
		OracleFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "oracle_fallbacks_total",
			Help:      "Total number of oracle fallbacks by cause",
		}, []string{"cause"}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "seal_decrypt_failures_total",
			Help:      "Total number of threshold-decryption failures at finalization",
		}),
		RewardsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldpool",
			Name:      "rewards_distributed_total",
			Help:      "Total number of reward distributions",
		}),
		FinalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shieldpool",
			Name:      "auction_finalize_duration_seconds",
			Help:      "Time to finalize a round",
			Buckets:   prometheus.DefBuckets,
		}),
		BidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shieldpool",
			Name:      "auction_bid_latency_seconds",
			Help:      "Time to process a bid",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.RoundsOpened, m.RoundsFinalized, m.BidsAccepted, m.BidsRejected,
		m.EncryptedBids, m.RefundsIssued, m.RightsGranted, m.RightsDenied,
		m.EstimatesRecorded, m.OracleFallbacks, m.DecryptFailures,
		m.RewardsDistributed, m.FinalizeDuration, m.BidLatency,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Gatherer returns the prometheus gatherer for metrics export
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Registerer returns the prometheus registerer
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}
