// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// StoreType defines the type of compliance storage backend.
type StoreType string

const (
	// StoreMemory uses in-memory storage (default, not persistent).
	StoreMemory StoreType = "memory"

	// StoreBadger uses BadgerDB for persistent storage.
	StoreBadger StoreType = "badger"
)

// StoreFactory creates compliance stores based on configuration.
type StoreFactory struct {
	db *badger.DB
}

// NewStoreFactory creates a new compliance store factory.
// If storeType is "badger", it opens a BadgerDB at the given path.
// If storeType is "memory" or empty, no database is opened.
func NewStoreFactory(storeType StoreType, path string) (*StoreFactory, error) {
	factory := &StoreFactory{}

	if storeType == StoreBadger {
		opts := badger.DefaultOptions(path)
		opts.Logger = nil // Suppress BadgerDB logs

		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open badger db for compliance: %w", err)
		}
		factory.db = db
	}

	return factory, nil
}

// CreateStore creates a Store based on the factory's configuration.
func (f *StoreFactory) CreateStore() Store {
	if f.db != nil {
		return NewBadgerStore(f.db)
	}
	return NewMemoryStore(0)
}

// Close closes the underlying BadgerDB if one was opened.
func (f *StoreFactory) Close() error {
	if f.db != nil {
		return f.db.Close()
	}
	return nil
}

// DB returns the underlying BadgerDB, or nil if using memory store.
func (f *StoreFactory) DB() *badger.DB {
	return f.db
}
