// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// generateKeyPair generates a new X25519 key pair for share wrapping.
func generateKeyPair() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return pub, priv, err
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return pub, priv, nil
}

// deriveSharedKey performs X25519 key agreement and derives a 32-byte
// symmetric key via HKDF-SHA256.
func deriveSharedKey(priv, pub [32]byte, info []byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, shared, nil, info)
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}
