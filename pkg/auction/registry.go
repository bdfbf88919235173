// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/metric"
	"github.com/mevshield/shieldpool/pkg/mev"
	"github.com/mevshield/shieldpool/pkg/oracle"
	"github.com/mevshield/shieldpool/pkg/rewards"
	"github.com/mevshield/shieldpool/pkg/seal"
	"github.com/mevshield/shieldpool/pkg/storage"
	"github.com/mevshield/shieldpool/pkg/vault"
)

var (
	ErrUnknownPool         = errors.New("unknown pool")
	ErrPoolExists          = errors.New("pool already registered")
	ErrRoundNotActive      = errors.New("no active auction round")
	ErrRoundExpired        = errors.New("auction round expired")
	ErrBidTooLow           = errors.New("bid below minimum")
	ErrBidNotImproved      = errors.New("bid does not beat current highest")
	ErrInsufficientDeposit = errors.New("attached value below bid amount")
	ErrRefundFailed        = errors.New("refund to displaced bidder failed")
	ErrReentrantCall       = errors.New("reentrant call rejected")
	ErrNoBid               = errors.New("no bid recorded for bidder")
)

// Decrypter is the threshold-encryption collaborator consulted at round
// finalization. Reveal failures degrade finalization to the plaintext
// path; they are never fatal.
type Decrypter interface {
	Reveal(ctx context.Context, ciphertexts []seal.Ciphertext) (map[uuid.UUID]decimal.Decimal, error)
	Discard(sessions []uuid.UUID)
}

// Config configures the auction registry.
type Config struct {
	MinBid        decimal.Decimal
	RoundDuration time.Duration
	RevealTimeout time.Duration
}

// DefaultConfig returns the default auction parameters.
func DefaultConfig() Config {
	return Config{
		MinBid:        decimal.RequireFromString("0.001"),
		RoundDuration: 12 * time.Second,
		RevealTimeout: 5 * time.Second,
	}
}

// Registry owns the per-pool round lifecycle. There is no background
// scheduler: an expired round finalizes on the next trade attempt that
// touches it, however late that arrives, and exactly one new round opens
// regardless of how much time was missed.
type Registry struct {
	cfg       Config
	ctxSrc    ContextSource
	vault     *vault.Vault
	ledger    *rewards.Ledger
	estimator *mev.Estimator
	decrypter Decrypter
	store     *storage.Storage
	metrics   *metric.Metrics
	log       log.Logger

	// now is injectable for deadline tests.
	now func() time.Time

	mu    sync.Mutex
	pools map[ids.PoolID]*round
	feeds map[ids.PoolID]oracle.FeedID

	// transferring guards the refund window: a call arriving while an
	// outbound transfer is in flight is a reentrant attempt.
	transferring atomic.Bool

	subMu sync.Mutex
	subs  map[uint64]chan RoundWonEvent
	subID uint64
}

// NewRegistry creates an auction registry. decrypter and store may be nil;
// encrypted bids then always degrade to the plaintext path and rounds are
// not archived.
func NewRegistry(
	cfg Config,
	ctxSrc ContextSource,
	v *vault.Vault,
	ledger *rewards.Ledger,
	estimator *mev.Estimator,
	decrypter Decrypter,
	store *storage.Storage,
	metrics *metric.Metrics,
	logger log.Logger,
) *Registry {
	if cfg.MinBid.IsZero() {
		cfg.MinBid = DefaultConfig().MinBid
	}
	if cfg.RoundDuration == 0 {
		cfg.RoundDuration = DefaultConfig().RoundDuration
	}
	if cfg.RevealTimeout == 0 {
		cfg.RevealTimeout = DefaultConfig().RevealTimeout
	}
	return &Registry{
		cfg:       cfg,
		ctxSrc:    ctxSrc,
		vault:     v,
		ledger:    ledger,
		estimator: estimator,
		decrypter: decrypter,
		store:     store,
		metrics:   metrics,
		log:       logger,
		now:       time.Now,
		pools:     make(map[ids.PoolID]*round),
		feeds:     make(map[ids.PoolID]oracle.FeedID),
		subs:      make(map[uint64]chan RoundWonEvent),
	}
}

// SetClock overrides the registry clock. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// OnPoolCreate seeds the first round for a pool and binds its oracle feed.
func (r *Registry) OnPoolCreate(poolID ids.PoolID, feedID oracle.FeedID) error {
	if r.transferring.Load() {
		return ErrReentrantCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[poolID]; ok {
		return ErrPoolExists
	}
	r.pools[poolID] = nil
	r.feeds[poolID] = feedID
	r.ensureCurrentRound(poolID)
	return nil
}

// BeforeTrade rolls the pool's round forward if needed and reports whether
// the trader holds exclusive first-trade rights for the current round. The
// flag is advisory: a denied trader may still trade, it just earns no
// exclusivity. The denial reason is returned for observability.
func (r *Registry) BeforeTrade(poolID ids.PoolID, trader ids.Address) (bool, string, error) {
	if r.transferring.Load() {
		return false, "", ErrReentrantCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[poolID]; !ok {
		return false, "", ErrUnknownPool
	}
	r.ensureCurrentRound(poolID)
	rd := r.pools[poolID]

	granted, reason := r.checkRights(rd, trader)
	if r.metrics != nil {
		if granted {
			r.metrics.RightsGranted.Inc()
		} else {
			r.metrics.RightsDenied.WithLabelValues(reason).Inc()
		}
	}
	return granted, reason, nil
}

// AfterTrade records the realized MEV estimate for a completed trade.
// Analytics only: the estimate never feeds reward amounts.
func (r *Registry) AfterTrade(poolID ids.PoolID, executionPrice, volume decimal.Decimal) error {
	if r.transferring.Load() {
		return ErrReentrantCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.pools[poolID]
	if !ok {
		return ErrUnknownPool
	}

	estimate := r.estimator.Estimate(poolID, r.feeds[poolID], executionPrice, volume)
	if rd != nil && rd.active {
		rd.totalEstimatedMEV = rd.totalEstimatedMEV.Add(estimate)
	}
	return nil
}

// OnLiquidityChange has no auction-state effect; it keeps the reward
// ledger's pro-rata stakes current.
func (r *Registry) OnLiquidityChange(poolID ids.PoolID, provider ids.Address, delta decimal.Decimal) error {
	if r.transferring.Load() {
		return ErrReentrantCall
	}
	if _, ok := r.poolExists(poolID); !ok {
		return ErrUnknownPool
	}
	return r.ledger.AdjustLiquidity(poolID, provider, delta)
}

func (r *Registry) poolExists(poolID ids.PoolID) (*round, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.pools[poolID]
	return rd, ok
}

// SubmitBid places a plaintext bid. The bid amount must already be on
// deposit in the bidder's vault account; it moves to the pool escrow on
// acceptance. The displaced bidder is refunded in full before the new bid
// is recorded; a failed refund rejects the new bid.
func (r *Registry) SubmitBid(poolID ids.PoolID, bidder ids.Address, amount decimal.Decimal) error {
	if r.transferring.Load() {
		return ErrReentrantCall
	}
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.pools[poolID]
	if !ok || rd == nil || !rd.active {
		return r.rejectBid(ErrRoundNotActive, "round_not_active")
	}
	if !r.now().Before(rd.deadline) {
		return r.rejectBid(ErrRoundExpired, "round_expired")
	}
	if amount.LessThan(r.cfg.MinBid) {
		return r.rejectBid(ErrBidTooLow, "below_minimum")
	}
	// Strict improvement: equal bids lose to the earlier bidder.
	if amount.LessThanOrEqual(rd.highestBid) {
		return r.rejectBid(ErrBidNotImproved, "not_improved")
	}

	escrow := vault.EscrowAddress(poolID)
	if err := r.vault.Move(bidder, escrow, amount); err != nil {
		return r.rejectBid(fmt.Errorf("%w: %v", ErrInsufficientDeposit, err), "deposit")
	}

	prevBidder := rd.highestBidder
	prevAmount := rd.highestBid
	if !prevBidder.IsEmpty() && prevAmount.GreaterThan(decimal.Zero) {
		// Push refund before recording the new bid. The transfer hook may
		// run recipient code; the guard rejects any re-entry while it runs.
		r.transferring.Store(true)
		err := r.vault.Transfer(escrow, prevBidder, prevAmount)
		r.transferring.Store(false)
		if err != nil {
			// Unwind the new bidder's deposit; round state is untouched.
			if uerr := r.vault.Move(escrow, bidder, amount); uerr != nil {
				r.log.Error("deposit unwind failed",
					"pool", poolID, "bidder", bidder, "error", uerr)
			}
			return r.rejectBid(fmt.Errorf("%w: %v", ErrRefundFailed, err), "refund_failed")
		}
		if r.metrics != nil {
			r.metrics.RefundsIssued.Inc()
		}
	}

	rd.highestBid = amount
	rd.highestBidder = bidder
	rd.bids[bidder] = Bid{
		PoolID:     poolID,
		Round:      rd.number,
		Bidder:     bidder,
		Amount:     amount,
		Visibility: Plaintext,
		AcceptedAt: r.now(),
	}

	if r.metrics != nil {
		r.metrics.BidsAccepted.Inc()
		r.metrics.BidLatency.Observe(time.Since(start).Seconds())
	}
	r.log.Info("bid accepted",
		"pool", poolID, "round", rd.number, "bidder", bidder, "amount", amount)
	return nil
}

// SubmitEncryptedBid records a sealed bid. The amount stays unknown until
// finalization, so only the minimum-bid deposit is taken and the round's
// highest bid is untouched. Returns the session handle.
func (r *Registry) SubmitEncryptedBid(poolID ids.PoolID, bidder ids.Address, ct seal.Ciphertext, policy seal.AccessPolicy) (uuid.UUID, error) {
	if r.transferring.Load() {
		return uuid.Nil, ErrReentrantCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.pools[poolID]
	if !ok || rd == nil || !rd.active {
		return uuid.Nil, r.rejectBid(ErrRoundNotActive, "round_not_active")
	}
	if !r.now().Before(rd.deadline) {
		return uuid.Nil, r.rejectBid(ErrRoundExpired, "round_expired")
	}

	escrow := vault.EscrowAddress(poolID)
	if err := r.vault.Move(bidder, escrow, r.cfg.MinBid); err != nil {
		return uuid.Nil, r.rejectBid(fmt.Errorf("%w: %v", ErrInsufficientDeposit, err), "deposit")
	}

	rd.encrypted = append(rd.encrypted, &EncryptedBidRecord{
		Bidder:      bidder,
		Ciphertext:  ct,
		Policy:      policy,
		Deposit:     r.cfg.MinBid,
		SubmittedAt: r.now(),
	})

	if r.metrics != nil {
		r.metrics.EncryptedBids.Inc()
	}
	r.log.Info("encrypted bid recorded",
		"pool", poolID, "round", rd.number, "bidder", bidder, "session", ct.Session)
	return ct.Session, nil
}

func (r *Registry) rejectBid(err error, reason string) error {
	if r.metrics != nil {
		r.metrics.BidsRejected.WithLabelValues(reason).Inc()
	}
	return err
}

// ensureCurrentRound is the lazy state machine tick: if the pool has no
// active round or the active round's deadline has passed, finalize the old
// round and open exactly one new one anchored to the current execution
// context. Idempotent before the new deadline. Callers hold r.mu.
func (r *Registry) ensureCurrentRound(poolID ids.PoolID) {
	rd := r.pools[poolID]
	if rd != nil && rd.active && r.now().Before(rd.deadline) {
		return
	}

	var number uint64 = 1
	if rd != nil {
		r.finalize(poolID, rd)
		number = rd.number + 1
	}

	now := r.now()
	r.pools[poolID] = &round{
		number:        number,
		openedAt:      now,
		deadline:      now.Add(r.cfg.RoundDuration),
		active:        true,
		anchorContext: r.ctxSrc.Previous(),
		highestBid:    decimal.Zero,
		bids:          make(map[ids.Address]Bid),
	}

	if r.metrics != nil {
		r.metrics.RoundsOpened.Inc()
	}
	r.log.Debug("round opened",
		"pool", poolID, "round", number, "deadline", r.pools[poolID].deadline)
}

// finalize closes a round: reveal encrypted bids (best effort), pick the
// winner, forward proceeds to the reward ledger, emit the round-won event,
// and destroy all encrypted records. Callers hold r.mu.
func (r *Registry) finalize(poolID ids.PoolID, rd *round) {
	start := time.Now()
	rd.active = false

	winner := rd.highestBidder
	amount := rd.highestBid
	sealed := false
	escrow := vault.EscrowAddress(poolID)

	if len(rd.encrypted) > 0 {
		if adopted := r.revealEncrypted(poolID, rd, escrow); adopted != nil {
			// The displaced plaintext winner gets a pull-based claim; the
			// push path is not safe mid-finalization.
			if !winner.IsEmpty() && amount.GreaterThan(decimal.Zero) {
				if err := r.vault.CreditClaim(escrow, winner, amount); err != nil {
					r.log.Error("plaintext winner refund failed",
						"pool", poolID, "bidder", winner, "error", err)
				}
			}
			winner = adopted.Bidder
			amount = adopted.Amount
			sealed = true
		}
		r.discardEncrypted(poolID, rd, escrow, winner, sealed)
	}

	if winner.IsEmpty() || amount.LessThanOrEqual(decimal.Zero) {
		r.log.Debug("round closed without winner", "pool", poolID, "round", rd.number)
		r.archive(poolID, rd)
		return
	}

	lpShare, protocolShare, err := r.ledger.Distribute(poolID, rd.number, winner, amount)
	if err != nil {
		// Proceeds stay in escrow; the audit trail records nothing. Surface
		// loudly, the auction itself still advances.
		r.log.Error("reward distribution failed",
			"pool", poolID, "round", rd.number, "error", err)
	}

	event := RoundWonEvent{
		PoolID:        poolID,
		Round:         rd.number,
		Winner:        winner,
		Amount:        amount,
		Sealed:        sealed,
		LPShare:       lpShare,
		ProtocolShare: protocolShare,
		FinalizedAt:   r.now(),
	}
	r.publish(event)

	if r.metrics != nil {
		r.metrics.RoundsFinalized.Inc()
		r.metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	}
	r.log.Info("round finalized",
		"pool", poolID, "round", rd.number, "winner", winner,
		"amount", amount, "sealed", sealed)
	r.archive(poolID, rd)
}

// revealEncrypted asks the decryption committee for the sealed amounts and
// returns the winning encrypted bid, if any beats the plaintext highest.
// Any failure degrades to the plaintext path.
func (r *Registry) revealEncrypted(poolID ids.PoolID, rd *round, escrow ids.Address) *Bid {
	if r.decrypter == nil {
		r.degrade(poolID, rd, "no decrypter configured", nil)
		return nil
	}

	cts := make([]seal.Ciphertext, len(rd.encrypted))
	for i, rec := range rd.encrypted {
		cts[i] = rec.Ciphertext
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RevealTimeout)
	defer cancel()
	revealed, err := r.decrypter.Reveal(ctx, cts)
	if err != nil {
		r.degrade(poolID, rd, "threshold reveal failed", err)
		return nil
	}

	var best *Bid
	threshold := rd.highestBid
	for _, rec := range rd.encrypted {
		amt, ok := revealed[rec.Ciphertext.Session]
		if !ok {
			continue
		}
		rec.Revealed = true
		if amt.LessThanOrEqual(threshold) || amt.LessThan(r.cfg.MinBid) {
			continue
		}
		// The sealed amount beyond the deposit must be on hand now, or the
		// reveal is ignored.
		topUp := amt.Sub(rec.Deposit)
		if topUp.GreaterThan(decimal.Zero) {
			if err := r.vault.Move(rec.Bidder, escrow, topUp); err != nil {
				r.log.Warn("revealed bid not covered",
					"pool", poolID, "bidder", rec.Bidder, "amount", amt)
				continue
			}
		}
		if best != nil {
			// Return the previously best record's funds beyond its deposit.
			prevTopUp := best.Amount.Sub(r.cfg.MinBid)
			if prevTopUp.GreaterThan(decimal.Zero) {
				if err := r.vault.Move(escrow, best.Bidder, prevTopUp); err != nil {
					r.log.Error("encrypted top-up unwind failed",
						"pool", poolID, "bidder", best.Bidder, "error", err)
				}
			}
		}
		best = &Bid{
			PoolID:     poolID,
			Round:      rd.number,
			Bidder:     rec.Bidder,
			Amount:     amt,
			Visibility: Encrypted,
			AcceptedAt: rec.SubmittedAt,
		}
		threshold = amt
	}
	return best
}

func (r *Registry) degrade(poolID ids.PoolID, rd *round, msg string, err error) {
	if r.metrics != nil {
		r.metrics.DecryptFailures.Inc()
	}
	r.log.Warn("finalizing on plaintext path: "+msg,
		"pool", poolID, "round", rd.number,
		"encrypted_bids", len(rd.encrypted), "error", err)
}

// discardEncrypted destroys all encrypted records for the round and
// credits back the deposits of every non-winning encrypted bidder.
func (r *Registry) discardEncrypted(poolID ids.PoolID, rd *round, escrow, winner ids.Address, sealed bool) {
	sessions := make([]uuid.UUID, 0, len(rd.encrypted))
	for _, rec := range rd.encrypted {
		sessions = append(sessions, rec.Ciphertext.Session)
		if sealed && rec.Bidder == winner {
			continue
		}
		if err := r.vault.CreditClaim(escrow, rec.Bidder, rec.Deposit); err != nil {
			r.log.Error("encrypted deposit refund failed",
				"pool", poolID, "bidder", rec.Bidder, "error", err)
		}
	}
	if r.decrypter != nil {
		r.decrypter.Discard(sessions)
	}
	rd.encrypted = nil
}

// archive persists the finalized round snapshot.
func (r *Registry) archive(poolID ids.PoolID, rd *round) {
	if r.store == nil {
		return
	}
	snap := r.snapshot(poolID, rd)
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	key := fmt.Sprintf("rounds/%s/%016d", poolID, rd.number)
	if err := r.store.Put([]byte(key), data); err != nil {
		r.log.Warn("round archive failed", "pool", poolID, "round", rd.number, "error", err)
	}
}

func (r *Registry) snapshot(poolID ids.PoolID, rd *round) RoundSnapshot {
	snap := RoundSnapshot{PoolID: poolID, State: Uninitialized}
	if rd == nil {
		return snap
	}
	snap.Number = rd.number
	snap.OpenedAt = rd.openedAt
	snap.Deadline = rd.deadline
	snap.AnchorContext = rd.anchorContext
	snap.HighestBid = rd.highestBid
	snap.HighestBidder = rd.highestBidder
	snap.EncryptedBids = len(rd.encrypted)
	snap.TotalEstimatedMEV = rd.totalEstimatedMEV
	switch {
	case !rd.active:
		snap.State = Finalized
	case !r.now().Before(rd.deadline):
		snap.State = PendingFinalization
	default:
		snap.State = Open
	}
	return snap
}

// GetRoundState reports the pool's round without mutating it: an expired
// round shows as pending finalization until the next touch rolls it over.
// Rejected during a refund transfer: mid-transfer round state is stale.
func (r *Registry) GetRoundState(poolID ids.PoolID) (RoundSnapshot, error) {
	if r.transferring.Load() {
		return RoundSnapshot{}, ErrReentrantCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.pools[poolID]
	if !ok {
		return RoundSnapshot{}, ErrUnknownPool
	}
	return r.snapshot(poolID, rd), nil
}

// GetBid returns the recorded bid for a bidder in the current round.
func (r *Registry) GetBid(poolID ids.PoolID, bidder ids.Address) (Bid, error) {
	if r.transferring.Load() {
		return Bid{}, ErrReentrantCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.pools[poolID]
	if !ok {
		return Bid{}, ErrUnknownPool
	}
	if rd == nil {
		return Bid{}, ErrNoBid
	}
	bid, ok := rd.bids[bidder]
	if !ok {
		return Bid{}, ErrNoBid
	}
	return bid, nil
}

// GetRewardLedger returns the pool's reward accounting snapshot.
func (r *Registry) GetRewardLedger(poolID ids.PoolID) (rewards.PoolLedger, error) {
	return r.ledger.Snapshot(poolID)
}

// RewardHistory returns the pool's persisted distribution audit trail.
func (r *Registry) RewardHistory(poolID ids.PoolID) ([]rewards.DistributionRecord, error) {
	return r.ledger.History(poolID)
}

// RoundHistory returns archived snapshots for a pool, oldest first.
func (r *Registry) RoundHistory(poolID ids.PoolID) ([]RoundSnapshot, error) {
	if r.store == nil {
		return nil, nil
	}
	pairs, err := r.store.List([]byte(fmt.Sprintf("rounds/%s/", poolID)))
	if err != nil {
		return nil, err
	}
	snaps := make([]RoundSnapshot, 0, len(pairs))
	for _, kv := range pairs {
		var snap RoundSnapshot
		if err := json.Unmarshal(kv[1], &snap); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Subscribe registers a round-won event listener. The returned cancel
// drops the subscription; slow listeners miss events rather than blocking
// finalization.
func (r *Registry) Subscribe() (<-chan RoundWonEvent, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.subID++
	id := r.subID
	ch := make(chan RoundWonEvent, 16)
	r.subs[id] = ch

	return ch, func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
}

func (r *Registry) publish(event RoundWonEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
