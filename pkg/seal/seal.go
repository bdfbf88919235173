// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package seal implements the threshold-encryption collaborator for
// encrypted bids: bid amounts are sealed under a per-session key whose
// Shamir shares are wrapped to a set of key holders; revealing requires a
// threshold of holders to cooperate.
package seal

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mevshield/shieldpool/pkg/log"
)

var (
	ErrThresholdNotMet   = errors.New("partial signature count below threshold")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrUnknownSession    = errors.New("unknown session")
	ErrNoKeyHolders      = errors.New("no key holders configured")
	ErrHolderOffline     = errors.New("key holder offline")
)

// AccessPolicy describes who may trigger a reveal of a sealed bid.
type AccessPolicy struct {
	Descriptor string `json:"descriptor"`
}

// Ciphertext is a sealed bid amount. The session identifier doubles as the
// handle returned to the bidder.
type Ciphertext struct {
	Session uuid.UUID `json:"session"`
	Nonce   []byte    `json:"nonce"`
	Sealed  []byte    `json:"sealed"`
}

// wrappedShare is a Shamir share sealed to one key holder.
type wrappedShare struct {
	index   uint32
	ephPub  [32]byte
	nonce   []byte
	wrapped []byte
}

// KeyHolder is one member of the decryption committee.
type KeyHolder struct {
	id   uint32
	pub  [32]byte
	priv [32]byte

	mu     sync.Mutex
	shares map[uuid.UUID]wrappedShare
	online bool
}

// NewKeyHolder creates a key holder with a fresh X25519 key pair.
func NewKeyHolder(id uint32) (*KeyHolder, error) {
	pub, priv, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	return &KeyHolder{
		id:     id,
		pub:    pub,
		priv:   priv,
		shares: make(map[uuid.UUID]wrappedShare),
		online: true,
	}, nil
}

// SetOnline marks the holder as reachable or not.
func (h *KeyHolder) SetOnline(online bool) {
	h.mu.Lock()
	h.online = online
	h.mu.Unlock()
}

func (h *KeyHolder) store(session uuid.UUID, ws wrappedShare) {
	h.mu.Lock()
	h.shares[session] = ws
	h.mu.Unlock()
}

func (h *KeyHolder) drop(session uuid.UUID) {
	h.mu.Lock()
	delete(h.shares, session)
	h.mu.Unlock()
}

// reveal unwraps and returns the holder's share for a session.
func (h *KeyHolder) reveal(session uuid.UUID) (share, error) {
	h.mu.Lock()
	ws, ok := h.shares[session]
	online := h.online
	h.mu.Unlock()

	if !online {
		return share{}, ErrHolderOffline
	}
	if !ok {
		return share{}, ErrUnknownSession
	}

	key, err := deriveSharedKey(h.priv, ws.ephPub, session[:])
	if err != nil {
		return share{}, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return share{}, err
	}
	plain, err := aead.Open(nil, ws.nonce, ws.wrapped, nil)
	if err != nil {
		return share{}, err
	}
	return share{Index: ws.index, Value: new(big.Int).SetBytes(plain)}, nil
}

// Provider coordinates sealing and threshold reveals across key holders.
type Provider struct {
	mu        sync.Mutex
	holders   []*KeyHolder
	threshold int
	sessions  map[uuid.UUID][]byte // session -> associated data
	log       log.Logger
}

// NewProvider creates a provider over the given committee. A reveal
// requires at least threshold cooperating holders.
func NewProvider(holders []*KeyHolder, threshold int, logger log.Logger) (*Provider, error) {
	if len(holders) == 0 {
		return nil, ErrNoKeyHolders
	}
	if threshold < 1 || threshold > len(holders) {
		return nil, fmt.Errorf("invalid threshold %d for %d holders", threshold, len(holders))
	}
	return &Provider{
		holders:   holders,
		threshold: threshold,
		sessions:  make(map[uuid.UUID][]byte),
		log:       logger,
	}, nil
}

// Encrypt seals a bid amount for a pool under a fresh session key and
// distributes the key's shares to the committee. The returned ciphertext
// carries the session handle.
func (p *Provider) Encrypt(poolID string, amount decimal.Decimal, policy AccessPolicy) (Ciphertext, error) {
	session := uuid.New()
	aad := sessionAAD(poolID, policy)

	// Session keys are sampled below the share field prime so they always
	// round-trip through the Shamir split.
	keyInt, err := rand.Int(rand.Reader, fieldPrime)
	if err != nil {
		return Ciphertext{}, err
	}
	key := make([]byte, 32)
	keyInt.FillBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return Ciphertext{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Ciphertext{}, err
	}
	sealed := aead.Seal(nil, nonce, []byte(amount.String()), aad)

	shares, err := splitSecret(key, p.threshold, len(p.holders))
	if err != nil {
		return Ciphertext{}, err
	}

	for i, holder := range p.holders {
		ephPub, ephPriv, err := generateKeyPair()
		if err != nil {
			return Ciphertext{}, err
		}
		wrapKey, err := deriveSharedKey(ephPriv, holder.pub, session[:])
		if err != nil {
			return Ciphertext{}, err
		}
		wrapAEAD, err := chacha20poly1305.New(wrapKey)
		if err != nil {
			return Ciphertext{}, err
		}
		wrapNonce := make([]byte, chacha20poly1305.NonceSize)
		if _, err := rand.Read(wrapNonce); err != nil {
			return Ciphertext{}, err
		}

		shareBytes := make([]byte, 32)
		shares[i].Value.FillBytes(shareBytes)

		holder.store(session, wrappedShare{
			index:   shares[i].Index,
			ephPub:  ephPub,
			nonce:   wrapNonce,
			wrapped: wrapAEAD.Seal(nil, wrapNonce, shareBytes, nil),
		})
	}

	p.mu.Lock()
	p.sessions[session] = aad
	p.mu.Unlock()

	p.log.Debug("bid sealed", "session", session, "pool", poolID)

	return Ciphertext{Session: session, Nonce: nonce, Sealed: sealed}, nil
}

// Reveal threshold-decrypts the given sessions. It fails with
// ErrThresholdNotMet when fewer than threshold holders can produce a
// partial for any requested session.
func (p *Provider) Reveal(ctx context.Context, ciphertexts []Ciphertext) (map[uuid.UUID]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	revealed := make(map[uuid.UUID]decimal.Decimal, len(ciphertexts))

	for _, ct := range ciphertexts {
		p.mu.Lock()
		aad, ok := p.sessions[ct.Session]
		p.mu.Unlock()
		if !ok {
			return nil, ErrUnknownSession
		}

		partials := make([]share, 0, len(p.holders))
		for _, holder := range p.holders {
			sh, err := holder.reveal(ct.Session)
			if err != nil {
				p.log.Debug("holder partial unavailable",
					"session", ct.Session, "holder", holder.id, "error", err)
				continue
			}
			partials = append(partials, sh)
		}
		if len(partials) < p.threshold {
			return nil, fmt.Errorf("%w: got %d, need %d",
				ErrThresholdNotMet, len(partials), p.threshold)
		}

		key, err := combineShares(partials, p.threshold)
		if err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
		plain, err := aead.Open(nil, ct.Nonce, ct.Sealed, aad)
		if err != nil {
			return nil, ErrInvalidCiphertext
		}
		amount, err := decimal.NewFromString(string(plain))
		if err != nil {
			return nil, ErrInvalidCiphertext
		}
		revealed[ct.Session] = amount
	}

	return revealed, nil
}

// Discard destroys all committee state for the given sessions.
func (p *Provider) Discard(sessions []uuid.UUID) {
	p.mu.Lock()
	for _, s := range sessions {
		delete(p.sessions, s)
	}
	p.mu.Unlock()

	for _, holder := range p.holders {
		for _, s := range sessions {
			holder.drop(s)
		}
	}
}

func sessionAAD(poolID string, policy AccessPolicy) []byte {
	h := sha256.Sum256([]byte(poolID + "|" + policy.Descriptor))
	return h[:]
}
