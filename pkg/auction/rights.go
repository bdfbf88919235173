// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"github.com/mevshield/shieldpool/pkg/ids"
)

// Rights-denial reasons, as reported by BeforeTrade and counted in metrics.
const (
	DenyRoundNotActive   = "round_not_active"
	DenyNoWinningBidder  = "no_winning_bidder"
	DenyNotHighestBidder = "not_highest_bidder"
	DenyContextMismatch  = "context_mismatch"
	DenyRoundExpired     = "round_expired"
)

// checkRights decides whether a trader holds exclusive first-trade rights
// for the round: the trader must be the highest bidder, the round must not
// have expired, and the round's anchor must still match the context
// immediately preceding the current one. Rights computed in an earlier
// context are never honored after the context moves on. Callers hold r.mu.
func (r *Registry) checkRights(rd *round, trader ids.Address) (bool, string) {
	if rd == nil || !rd.active {
		return false, DenyRoundNotActive
	}
	if rd.highestBidder.IsEmpty() {
		return false, DenyNoWinningBidder
	}
	if trader != rd.highestBidder {
		return false, DenyNotHighestBidder
	}
	if rd.anchorContext != r.ctxSrc.Previous() {
		return false, DenyContextMismatch
	}
	if !r.now().Before(rd.deadline) {
		return false, DenyRoundExpired
	}
	return true, ""
}
