// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	consents map[string]map[string]ConsentRecord
	trail    []TrailEntry
	maxTrail int
}

// NewMemoryStore creates a new in-memory compliance store. maxTrail
// caps the trail length; zero or negative uses 10000.
func NewMemoryStore(maxTrail int) *MemoryStore {
	if maxTrail <= 0 {
		maxTrail = 10000
	}
	return &MemoryStore{
		consents: make(map[string]map[string]ConsentRecord),
		trail:    make([]TrailEntry, 0, 64),
		maxTrail: maxTrail,
	}
}

// SaveConsent upserts the record for record.UserID under storageKey.
func (s *MemoryStore) SaveConsent(ctx context.Context, storageKey string, record *ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.consents[storageKey]
	if !ok {
		users = make(map[string]ConsentRecord)
		s.consents[storageKey] = users
	}
	users[record.UserID] = *record
	return nil
}

// GetConsent retrieves one user's record.
func (s *MemoryStore) GetConsent(ctx context.Context, storageKey, userID string) (*ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.consents[storageKey][userID]
	if !ok {
		return nil, ErrNoConsentRecord
	}
	out := rec
	return &out, nil
}

// ListConsent returns every record under storageKey, ordered by user id.
func (s *MemoryStore) ListConsent(ctx context.Context, storageKey string) ([]ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := s.consents[storageKey]
	out := make([]ConsentRecord, 0, len(users))
	for _, rec := range users {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// AppendTrail persists a trail entry.
func (s *MemoryStore) AppendTrail(ctx context.Context, entry *TrailEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Enforce max length by removing oldest entries
	if len(s.trail) >= s.maxTrail {
		removeCount := s.maxTrail / 10
		if removeCount < 1 {
			removeCount = 1
		}
		s.trail = s.trail[removeCount:]
	}

	s.trail = append(s.trail, *entry)
	return nil
}

// QueryTrail returns matching entries, newest first.
func (s *MemoryStore) QueryTrail(ctx context.Context, filter TrailFilter) ([]TrailEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []TrailEntry
	skipped := 0

	for i := len(s.trail) - 1; i >= 0; i-- { // Iterate in reverse for recent-first
		ent := s.trail[i]

		if !matchesTrailFilter(&ent, &filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}

		results = append(results, ent)

		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

// matchesTrailFilter returns true if the entry matches all filter criteria.
func matchesTrailFilter(ent *TrailEntry, filter *TrailFilter) bool {
	if filter.UserID != "" && ent.UserID != filter.UserID {
		return false
	}
	if filter.Action != "" && ent.Action != filter.Action {
		return false
	}
	if filter.Result != "" && ent.Result != filter.Result {
		return false
	}
	if filter.StartTime != nil && ent.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && ent.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.SearchText != "" {
		searchLower := strings.ToLower(filter.SearchText)
		if !strings.Contains(strings.ToLower(ent.Action), searchLower) &&
			!strings.Contains(strings.ToLower(ent.Resource), searchLower) {
			return false
		}
	}
	return true
}

// CountTrail returns the number of matching entries.
func (s *MemoryStore) CountTrail(ctx context.Context, filter TrailFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.trail {
		if matchesTrailFilter(&s.trail[i], &filter) {
			count++
		}
	}
	return count, nil
}

// DeleteTrail removes entries older than the given time.
func (s *MemoryStore) DeleteTrail(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []TrailEntry
	var deleted int64

	for idx := range s.trail {
		if s.trail[idx].Timestamp.Before(olderThan) {
			deleted++
		} else {
			kept = append(kept, s.trail[idx])
		}
	}

	s.trail = kept
	return deleted, nil
}

// Clear removes all records (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents = make(map[string]map[string]ConsentRecord)
	s.trail = s.trail[:0]
}

// TrailLen returns the number of trail entries in the store.
func (s *MemoryStore) TrailLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trail)
}

// ConsentLen returns the number of consent records under storageKey.
func (s *MemoryStore) ConsentLen(storageKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consents[storageKey])
}
