// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PoolIDLen is the length of a PoolID in bytes
const PoolIDLen = 32

// AddressLen is the length of an Address in bytes
const AddressLen = 20

// PoolID uniquely identifies a liquidity pool
type PoolID [PoolIDLen]byte

// EmptyPoolID is an empty PoolID
var EmptyPoolID = PoolID{}

// String returns the string representation of a PoolID
func (id PoolID) String() string {
	return hex.EncodeToString(id[:])
}

// IsEmpty returns true if the PoolID is empty
func (id PoolID) IsEmpty() bool {
	return id == PoolID{}
}

// Bytes returns the byte representation of a PoolID
func (id PoolID) Bytes() []byte {
	return id[:]
}

// PoolIDFromString parses a PoolID from a hex string
func PoolIDFromString(s string) (PoolID, error) {
	var id PoolID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != PoolIDLen {
		return id, fmt.Errorf("invalid PoolID length: expected %d, got %d", PoolIDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Address identifies a bidder, trader, or payout sink
type Address [AddressLen]byte

// EmptyAddress is an empty Address
var EmptyAddress = Address{}

// String returns the string representation of an Address
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsEmpty returns true if the Address is empty
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// Bytes returns the byte representation of an Address
func (a Address) Bytes() []byte {
	return a[:]
}

// AddressFromString parses an Address from a hex string
func AddressFromString(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(b) != AddressLen {
		return a, fmt.Errorf("invalid Address length: expected %d, got %d", AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// GeneratePoolID generates a new random PoolID
func GeneratePoolID() PoolID {
	var id PoolID
	_, _ = rand.Read(id[:])
	return id
}

// GenerateAddress generates a new random Address
func GenerateAddress() Address {
	var a Address
	_, _ = rand.Read(a[:])
	return a
}

// GenerateTestPoolID generates a PoolID for testing
func GenerateTestPoolID() PoolID {
	return GeneratePoolID()
}

// GenerateTestAddress generates an Address for testing
func GenerateTestAddress() Address {
	return GenerateAddress()
}
