// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrTransferRejected    = errors.New("transfer rejected")
	ErrNoClaim             = errors.New("no claimable balance")
)

// TransferHook observes an outbound value transfer before it is applied.
// It stands in for the recipient-controlled code that runs when value is
// pushed on-chain; returning an error rejects the transfer.
type TransferHook func(from, to ids.Address, amount decimal.Decimal) error

// Vault is the value engine backing the auction: it holds attached bid
// value, performs refunds, and carries pull-based claim credits.
type Vault struct {
	mu       sync.Mutex
	balances map[ids.Address]decimal.Decimal
	claims   map[ids.Address]decimal.Decimal
	hook     TransferHook
	log      log.Logger
}

// New creates a new vault
func New(logger log.Logger) *Vault {
	return &Vault{
		balances: make(map[ids.Address]decimal.Decimal),
		claims:   make(map[ids.Address]decimal.Decimal),
		log:      logger,
	}
}

// SetTransferHook installs a hook invoked on every outbound transfer.
func (v *Vault) SetTransferHook(h TransferHook) {
	v.mu.Lock()
	v.hook = h
	v.mu.Unlock()
}

// EscrowAddress derives the escrow account for a pool.
func EscrowAddress(poolID ids.PoolID) ids.Address {
	h := sha256.Sum256(append([]byte("shieldpool/escrow/"), poolID.Bytes()...))
	var a ids.Address
	copy(a[:], h[:ids.AddressLen])
	return a
}

// Deposit credits an account with attached value.
func (v *Vault) Deposit(account ids.Address, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	v.balances[account] = v.balances[account].Add(amount)
	v.mu.Unlock()
	return nil
}

// Balance returns the held balance for an account.
func (v *Vault) Balance(account ids.Address) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account]
}

// Transfer moves value between accounts, invoking the transfer hook for
// the recipient side. A hook error rejects the transfer with no mutation.
func (v *Vault) Transfer(from, to ids.Address, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}

	v.mu.Lock()
	hook := v.hook
	fromBalance := v.balances[from]
	v.mu.Unlock()

	if fromBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	// The hook runs outside the vault lock: it models external code and
	// may call back into the system.
	if hook != nil {
		if err := hook(from, to, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	}

	v.mu.Lock()
	// Re-check under lock; the hook may have moved funds.
	fromBalance = v.balances[from]
	if fromBalance.LessThan(amount) {
		v.mu.Unlock()
		return ErrInsufficientBalance
	}
	v.balances[from] = fromBalance.Sub(amount)
	v.balances[to] = v.balances[to].Add(amount)
	v.mu.Unlock()

	v.log.Debug("value transferred", "from", from, "to", to, "amount", amount)
	return nil
}

// Move transfers value between accounts without invoking the hook.
// Used for internal bookkeeping moves that never leave the vault.
func (v *Vault) Move(from, to ids.Address, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	fromBalance := v.balances[from]
	if fromBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	v.balances[from] = fromBalance.Sub(amount)
	v.balances[to] = v.balances[to].Add(amount)
	return nil
}

// CreditClaim records a pull-based claim credit for an account. Used when
// a push refund cannot be completed safely at finalization time.
func (v *Vault) CreditClaim(from, account ids.Address, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	fromBalance := v.balances[from]
	if fromBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	v.balances[from] = fromBalance.Sub(amount)
	v.claims[account] = v.claims[account].Add(amount)
	return nil
}

// Claimable returns the pull-claim balance for an account.
func (v *Vault) Claimable(account ids.Address) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claims[account]
}

// Claim pays out an account's full claim balance.
func (v *Vault) Claim(account ids.Address) (decimal.Decimal, error) {
	v.mu.Lock()
	amount := v.claims[account]
	if amount.LessThanOrEqual(decimal.Zero) {
		v.mu.Unlock()
		return decimal.Zero, ErrNoClaim
	}
	delete(v.claims, account)
	v.balances[account] = v.balances[account].Add(amount)
	v.mu.Unlock()

	v.log.Debug("claim paid", "account", account, "amount", amount)
	return amount, nil
}

// Withdraw removes value from an account, returning it to the host.
func (v *Vault) Withdraw(account ids.Address, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.balances[account]
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	v.balances[account] = balance.Sub(amount)
	return nil
}
