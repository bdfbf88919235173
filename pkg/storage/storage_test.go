// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage("memory", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newMemStore(t)

	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))

	value, err := s.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	_, err = s.Get([]byte("missing"))
	require.Error(t, err)
}

func TestHasDelete(t *testing.T) {
	s := newMemStore(t)

	ok, err := s.Has([]byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))
	ok, err = s.Has([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete([]byte("k1")))
	ok, err = s.Has([]byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListPrefix(t *testing.T) {
	s := newMemStore(t)

	require.NoError(t, s.Put([]byte("rounds/a/1"), []byte("r1")))
	require.NoError(t, s.Put([]byte("rounds/a/2"), []byte("r2")))
	require.NoError(t, s.Put([]byte("rounds/b/1"), []byte("other")))

	pairs, err := s.List([]byte("rounds/a/"))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, []byte("rounds/a/1"), pairs[0][0])
	require.Equal(t, []byte("r2"), pairs[1][1])
}

func TestDiskStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage("badger", dir)
	require.NoError(t, err)

	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	// Reopen and confirm persistence.
	s, err = NewStorage("badger", dir)
	require.NoError(t, err)
	defer s.Close()

	value, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}
