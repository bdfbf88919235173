// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auction implements the continuous round-based first-price
// auction attached to each liquidity pool. It sells the exclusive right to
// trade first against the pool after every round and forwards the winning
// bid to the reward ledger.
package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/seal"
)

// RoundState is the lifecycle state of a pool's auction round.
type RoundState uint8

const (
	Uninitialized RoundState = iota
	Open
	PendingFinalization
	Finalized
)

func (s RoundState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Open:
		return "open"
	case PendingFinalization:
		return "pending_finalization"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Visibility distinguishes plaintext from sealed bids.
type Visibility uint8

const (
	Plaintext Visibility = iota
	Encrypted
)

func (v Visibility) String() string {
	if v == Encrypted {
		return "encrypted"
	}
	return "plaintext"
}

// Bid is an immutable record of an accepted bid. A higher bid supersedes
// an earlier one; amounts are never revised in place.
type Bid struct {
	PoolID     ids.PoolID      `json:"pool_id"`
	Round      uint64          `json:"round"`
	Bidder     ids.Address     `json:"bidder"`
	Amount     decimal.Decimal `json:"amount"`
	Visibility Visibility      `json:"visibility"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

// EncryptedBidRecord tracks a sealed bid between submission and
// finalization. Records are destroyed at finalization regardless of
// outcome.
type EncryptedBidRecord struct {
	Bidder      ids.Address       `json:"bidder"`
	Ciphertext  seal.Ciphertext   `json:"ciphertext"`
	Policy      seal.AccessPolicy `json:"policy"`
	Deposit     decimal.Decimal   `json:"deposit"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Revealed    bool              `json:"revealed"`
}

// round is the per-pool live auction state. One active instance per pool.
type round struct {
	number            uint64
	openedAt          time.Time
	deadline          time.Time
	active            bool
	anchorContext     uint64
	highestBid        decimal.Decimal
	highestBidder     ids.Address
	bids              map[ids.Address]Bid
	encrypted         []*EncryptedBidRecord
	totalEstimatedMEV decimal.Decimal
}

// RoundSnapshot is the query-surface view of a round.
type RoundSnapshot struct {
	PoolID            ids.PoolID      `json:"pool_id"`
	Number            uint64          `json:"number"`
	State             RoundState      `json:"state"`
	OpenedAt          time.Time       `json:"opened_at"`
	Deadline          time.Time       `json:"deadline"`
	AnchorContext     uint64          `json:"anchor_context"`
	HighestBid        decimal.Decimal `json:"highest_bid"`
	HighestBidder     ids.Address     `json:"highest_bidder"`
	EncryptedBids     int             `json:"encrypted_bids"`
	TotalEstimatedMEV decimal.Decimal `json:"total_estimated_mev"`
}

// RoundWonEvent is emitted when a round finalizes with a winner.
type RoundWonEvent struct {
	PoolID        ids.PoolID      `json:"pool_id"`
	Round         uint64          `json:"round"`
	Winner        ids.Address     `json:"winner"`
	Amount        decimal.Decimal `json:"amount"`
	Sealed        bool            `json:"sealed"`
	LPShare       decimal.Decimal `json:"lp_share"`
	ProtocolShare decimal.Decimal `json:"protocol_share"`
	FinalizedAt   time.Time       `json:"finalized_at"`
}
