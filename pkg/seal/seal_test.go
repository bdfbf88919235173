// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package seal

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/shieldpool/pkg/log"
)

func newCommittee(t *testing.T, total, threshold int) (*Provider, []*KeyHolder) {
	t.Helper()
	holders := make([]*KeyHolder, total)
	var err error
	for i := range holders {
		holders[i], err = NewKeyHolder(uint32(i + 1))
		require.NoError(t, err)
	}
	p, err := NewProvider(holders, threshold, log.NoOp())
	require.NoError(t, err)
	return p, holders
}

func TestSealRevealRoundtrip(t *testing.T) {
	p, _ := newCommittee(t, 3, 2)
	amount := decimal.RequireFromString("1.2345")

	ct, err := p.Encrypt("pool-1", amount, AccessPolicy{Descriptor: "round-finalization"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ct.Session)

	revealed, err := p.Reveal(context.Background(), []Ciphertext{ct})
	require.NoError(t, err)
	require.Len(t, revealed, 1)
	require.True(t, revealed[ct.Session].Equal(amount))
}

func TestRevealWithOneHolderOffline(t *testing.T) {
	p, holders := newCommittee(t, 3, 2)

	ct, err := p.Encrypt("pool-1", decimal.New(7, 0), AccessPolicy{})
	require.NoError(t, err)

	holders[0].SetOnline(false)

	revealed, err := p.Reveal(context.Background(), []Ciphertext{ct})
	require.NoError(t, err)
	require.True(t, revealed[ct.Session].Equal(decimal.New(7, 0)))
}

func TestRevealBelowThreshold(t *testing.T) {
	p, holders := newCommittee(t, 3, 2)

	ct, err := p.Encrypt("pool-1", decimal.New(7, 0), AccessPolicy{})
	require.NoError(t, err)

	holders[0].SetOnline(false)
	holders[1].SetOnline(false)

	_, err = p.Reveal(context.Background(), []Ciphertext{ct})
	require.ErrorIs(t, err, ErrThresholdNotMet)
}

func TestRevealUnknownSession(t *testing.T) {
	p, _ := newCommittee(t, 3, 2)

	_, err := p.Reveal(context.Background(), []Ciphertext{{Session: uuid.New()}})
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestDiscardDestroysShares(t *testing.T) {
	p, _ := newCommittee(t, 3, 2)

	ct, err := p.Encrypt("pool-1", decimal.New(1, 0), AccessPolicy{})
	require.NoError(t, err)

	p.Discard([]uuid.UUID{ct.Session})

	_, err = p.Reveal(context.Background(), []Ciphertext{ct})
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestCancelledContext(t *testing.T) {
	p, _ := newCommittee(t, 3, 2)

	ct, err := p.Encrypt("pool-1", decimal.New(1, 0), AccessPolicy{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Reveal(ctx, []Ciphertext{ct})
	require.ErrorIs(t, err, context.Canceled)
}

func TestInvalidProviderConfig(t *testing.T) {
	_, err := NewProvider(nil, 1, log.NoOp())
	require.ErrorIs(t, err, ErrNoKeyHolders)

	holders := make([]*KeyHolder, 2)
	for i := range holders {
		holders[i], err = NewKeyHolder(uint32(i + 1))
		require.NoError(t, err)
	}
	_, err = NewProvider(holders, 3, log.NoOp())
	require.Error(t, err)
	_, err = NewProvider(holders, 0, log.NoOp())
	require.Error(t, err)
}

func TestShamirRoundtrip(t *testing.T) {
	secret := make([]byte, 32)
	secret[0] = 0x01 // keep the value below the field prime
	_, err := rand.Read(secret[1:])
	require.NoError(t, err)

	shares, err := splitSecret(secret, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	// Any 3 of 5 reconstruct.
	out, err := combineShares([]share{shares[4], shares[0], shares[2]}, 3)
	require.NoError(t, err)
	require.Equal(t, secret, out)

	_, err = combineShares(shares[:2], 3)
	require.ErrorIs(t, err, errTooFewShares)

	_, err = combineShares([]share{shares[0], shares[0], shares[1]}, 3)
	require.ErrorIs(t, err, errDuplicateShares)
}
