// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage
const (
	consentKeyPrefix = "consent:"
	trailKeyPrefix   = "trail:"
)

// deleteChunkSize bounds deletes per transaction so large cleanup runs
// stay under Badger's transaction size limit.
const deleteChunkSize = 1000

// BadgerStore implements Store using BadgerDB for durable storage.
// This is suitable for production use with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed compliance store from an
// existing DB connection.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// consentKey builds the storage key for one user's consent record.
func consentKey(storageKey, userID string) []byte {
	return []byte(consentKeyPrefix + storageKey + ":" + userID)
}

// trailKey builds the storage key for a trail entry. The zero-padded
// nanosecond timestamp makes lexicographic key order equal time order,
// so range scans and age-based deletes never unmarshal values.
func trailKey(ent *TrailEntry) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", trailKeyPrefix, ent.Timestamp.UnixNano(), ent.ID))
}

// SaveConsent upserts the record for record.UserID under storageKey.
func (s *BadgerStore) SaveConsent(ctx context.Context, storageKey string, record *ConsentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal consent record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(consentKey(storageKey, record.UserID), data)
	})
}

// GetConsent retrieves one user's record.
func (s *BadgerStore) GetConsent(ctx context.Context, storageKey, userID string) (*ConsentRecord, error) {
	var record ConsentRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(consentKey(storageKey, userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoConsentRecord
		}
		if err != nil {
			return fmt.Errorf("get consent record: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})

	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ListConsent returns every record under storageKey, ordered by user id.
// Key order within a storage key prefix is user-id order already.
func (s *BadgerStore) ListConsent(ctx context.Context, storageKey string) ([]ConsentRecord, error) {
	var records []ConsentRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(consentKeyPrefix + storageKey + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var record ConsentRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				continue
			}

			records = append(records, record)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}

	return records, nil
}

// AppendTrail persists a trail entry.
func (s *BadgerStore) AppendTrail(ctx context.Context, ent *TrailEntry) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("marshal trail entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(trailKey(ent), data)
	})
}

// QueryTrail returns matching entries, newest first.
func (s *BadgerStore) QueryTrail(ctx context.Context, filter TrailFilter) ([]TrailEntry, error) {
	var results []TrailEntry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(trailKeyPrefix)
		// Seek past the last trail key so reverse iteration starts at
		// the newest entry.
		seek := append(append([]byte(nil), prefix...), 0xFF)

		skipped := 0
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var ent TrailEntry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ent)
			})
			if err != nil {
				continue
			}

			if !matchesTrailFilter(&ent, &filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			results = append(results, ent)

			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("query trail: %w", err)
	}

	return results, nil
}

// CountTrail returns the number of matching entries. An unconstrained
// filter counts keys without reading values.
func (s *BadgerStore) CountTrail(ctx context.Context, filter TrailFilter) (int64, error) {
	var count int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = !filter.IsZero()
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(trailKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if filter.IsZero() {
				count++
				continue
			}

			var ent TrailEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ent)
			})
			if err != nil {
				continue
			}
			if matchesTrailFilter(&ent, &filter) {
				count++
			}
		}
		return nil
	})

	return count, err
}

// DeleteTrail removes entries older than the given time. The cutoff is
// compared against the timestamp embedded in each key, so the scan
// stops at the first new-enough entry.
func (s *BadgerStore) DeleteTrail(ctx context.Context, olderThan time.Time) (int64, error) {
	var expired [][]byte

	cutoff := []byte(fmt.Sprintf("%s%020d", trailKeyPrefix, olderThan.UnixNano()))

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(trailKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(cutoff) {
				break
			}
			expired = append(expired, key)
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("scan trail: %w", err)
	}

	var deleted int64
	for start := 0; start < len(expired); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(expired) {
			end = len(expired)
		}
		chunk := expired[start:end]

		err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range chunk {
				if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("delete trail entry: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += int64(len(chunk))
	}

	return deleted, nil
}
