// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	badger "github.com/dgraph-io/badger/v4"
)

// Storage wraps the badger key-value store used for the round archive and
// the reward audit trail.
type Storage struct {
	db *badger.DB
}

// NewStorage creates a new storage instance. dbType "memory" opens an
// in-memory store; anything else opens an on-disk badger store at path.
func NewStorage(dbType string, path string) (*Storage, error) {
	var opts badger.Options
	switch dbType {
	case "memory":
		opts = badger.DefaultOptions("").WithInMemory(true)
	default:
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Put stores a key-value pair
func (s *Storage) Put(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Get retrieves a value by key
func (s *Storage) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Has checks if a key exists
func (s *Storage) Has(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a key-value pair
func (s *Storage) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// List returns all key-value pairs under a prefix, in key order.
func (s *Storage) List(prefix []byte) ([][2][]byte, error) {
	var out [][2][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, [2][]byte{key, value})
		}
		return nil
	})
	return out, err
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
