// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package seal

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// fieldPrime is the 256-bit prime 2^256 - 189; all share arithmetic is
// performed modulo this prime.
var fieldPrime, _ = new(big.Int).SetString(
	"115792089237316195423570985008687907853269984665640564039457584007913129639747", 10)

var (
	errTooFewShares    = errors.New("not enough shares to reconstruct")
	errInvalidSplit    = errors.New("invalid share split parameters")
	errDuplicateShares = errors.New("duplicate share indices")
)

// share is a single Shamir share of a session key.
type share struct {
	Index uint32
	Value *big.Int
}

// splitSecret splits a 32-byte secret into total shares, any threshold of
// which reconstruct it.
func splitSecret(secret []byte, threshold, total int) ([]share, error) {
	if threshold < 1 || total < threshold || len(secret) != 32 {
		return nil, errInvalidSplit
	}

	s := new(big.Int).SetBytes(secret)
	if s.Cmp(fieldPrime) >= 0 {
		return nil, errInvalidSplit
	}

	// Random polynomial of degree threshold-1 with constant term = secret.
	coeffs := make([]*big.Int, threshold)
	coeffs[0] = s
	for i := 1; i < threshold; i++ {
		c, err := rand.Int(rand.Reader, fieldPrime)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	shares := make([]share, total)
	for i := 0; i < total; i++ {
		x := big.NewInt(int64(i + 1))
		shares[i] = share{Index: uint32(i + 1), Value: evalPoly(coeffs, x)}
	}
	return shares, nil
}

// combineShares reconstructs the secret from at least threshold shares via
// Lagrange interpolation at zero.
func combineShares(shares []share, threshold int) ([]byte, error) {
	if len(shares) < threshold {
		return nil, errTooFewShares
	}
	shares = shares[:threshold]

	seen := make(map[uint32]bool, len(shares))
	for _, sh := range shares {
		if seen[sh.Index] {
			return nil, errDuplicateShares
		}
		seen[sh.Index] = true
	}

	secret := new(big.Int)
	for i, si := range shares {
		num := big.NewInt(1)
		den := big.NewInt(1)
		xi := big.NewInt(int64(si.Index))

		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := big.NewInt(int64(sj.Index))
			num.Mul(num, new(big.Int).Neg(xj))
			num.Mod(num, fieldPrime)
			den.Mul(den, new(big.Int).Sub(xi, xj))
			den.Mod(den, fieldPrime)
		}

		term := new(big.Int).Set(si.Value)
		term.Mul(term, num)
		term.Mod(term, fieldPrime)
		term.Mul(term, new(big.Int).ModInverse(den, fieldPrime))
		term.Mod(term, fieldPrime)

		secret.Add(secret, term)
		secret.Mod(secret, fieldPrime)
	}

	out := make([]byte, 32)
	secret.FillBytes(out)
	return out, nil
}

func evalPoly(coeffs []*big.Int, x *big.Int) *big.Int {
	// Horner evaluation modulo the field prime.
	res := new(big.Int)
	for i := len(coeffs) - 1; i >= 0; i-- {
		res.Mul(res, x)
		res.Add(res, coeffs[i])
		res.Mod(res, fieldPrime)
	}
	return res
}
