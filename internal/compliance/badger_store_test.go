// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// newBadgerStore opens a Badger-backed store in a temp directory and
// closes it when the test ends.
func newBadgerStore(t *testing.T) Store {
	t.Helper()
	factory, err := NewStoreFactory(StoreBadger, t.TempDir())
	if err != nil {
		t.Fatalf("NewStoreFactory() error = %v", err)
	}
	t.Cleanup(func() {
		if err := factory.Close(); err != nil {
			t.Errorf("factory Close() error = %v", err)
		}
	})
	return factory.CreateStore()
}

// TestBadgerStoreConsentRoundTrip verifies durable save, get, upsert,
// and the missing record sentinel.
func TestBadgerStoreConsentRoundTrip(t *testing.T) {
	store := newBadgerStore(t)
	ctx := context.Background()

	rec := &ConsentRecord{
		UserID:    "u1",
		Granted:   true,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		UserAgent: "Mozilla/5.0",
	}
	if err := store.SaveConsent(ctx, "ns", rec); err != nil {
		t.Fatalf("SaveConsent() error = %v", err)
	}

	got, err := store.GetConsent(ctx, "ns", "u1")
	if err != nil {
		t.Fatalf("GetConsent() error = %v", err)
	}
	if !got.Granted || got.UserAgent != "Mozilla/5.0" {
		t.Errorf("GetConsent() = %+v, want saved record", got)
	}
	if !got.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, rec.Timestamp)
	}

	_, err = store.GetConsent(ctx, "ns", "missing")
	if !errors.Is(err, ErrNoConsentRecord) {
		t.Errorf("GetConsent(missing) error = %v, want ErrNoConsentRecord", err)
	}

	// Upsert replaces the record.
	rec.Granted = false
	if err := store.SaveConsent(ctx, "ns", rec); err != nil {
		t.Fatalf("SaveConsent() error = %v", err)
	}
	got, err = store.GetConsent(ctx, "ns", "u1")
	if err != nil {
		t.Fatalf("GetConsent() error = %v", err)
	}
	if got.Granted {
		t.Error("Granted = true, want false after upsert")
	}
}

// TestBadgerStoreNamespaceIsolation verifies storage keys keep consent
// namespaces apart.
func TestBadgerStoreNamespaceIsolation(t *testing.T) {
	store := newBadgerStore(t)
	ctx := context.Background()

	if err := store.SaveConsent(ctx, "ns-a", &ConsentRecord{UserID: "u1", Granted: true}); err != nil {
		t.Fatalf("SaveConsent() error = %v", err)
	}

	_, err := store.GetConsent(ctx, "ns-b", "u1")
	if !errors.Is(err, ErrNoConsentRecord) {
		t.Errorf("GetConsent(other namespace) error = %v, want ErrNoConsentRecord", err)
	}

	records, err := store.ListConsent(ctx, "ns-a")
	if err != nil {
		t.Fatalf("ListConsent() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
}

// TestBadgerStoreListConsentOrdered verifies key order gives user id order.
func TestBadgerStoreListConsentOrdered(t *testing.T) {
	store := newBadgerStore(t)
	ctx := context.Background()

	for _, id := range []string{"charlie", "alice", "bob"} {
		if err := store.SaveConsent(ctx, "ns", &ConsentRecord{UserID: id, Granted: true}); err != nil {
			t.Fatalf("SaveConsent(%s) error = %v", id, err)
		}
	}

	records, err := store.ListConsent(ctx, "ns")
	if err != nil {
		t.Fatalf("ListConsent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, want := range []string{"alice", "bob", "charlie"} {
		if records[i].UserID != want {
			t.Errorf("records[%d].UserID = %q, want %q", i, records[i].UserID, want)
		}
	}
}

// TestBadgerStoreTrailRecentFirst verifies reverse key iteration
// yields newest entries first.
func TestBadgerStoreTrailRecentFirst(t *testing.T) {
	store := newBadgerStore(t)
	seedTrail(t, store, time.Now().UTC().Add(-time.Hour), 5)

	entries, err := store.QueryTrail(context.Background(), TrailFilter{})
	if err != nil {
		t.Fatalf("QueryTrail() error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	if entries[0].ID != "e4" || entries[4].ID != "e0" {
		t.Errorf("order = %s..%s, want e4..e0", entries[0].ID, entries[4].ID)
	}

	limited, err := store.QueryTrail(context.Background(), TrailFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("QueryTrail() error = %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "e3" || limited[1].ID != "e2" {
		t.Errorf("paged entries = %v, want e3, e2", limited)
	}
}

// TestBadgerStoreTrailFilter verifies value-level filtering.
func TestBadgerStoreTrailFilter(t *testing.T) {
	store := newBadgerStore(t)
	seedTrail(t, store, time.Now().UTC().Add(-time.Hour), 6)
	ctx := context.Background()

	entries, err := store.QueryTrail(ctx, TrailFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("QueryTrail() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries for u1 = %d, want 3", len(entries))
	}
	for _, ent := range entries {
		if ent.UserID != "u1" {
			t.Errorf("entry %s has UserID %q, want u1", ent.ID, ent.UserID)
		}
	}

	count, err := store.CountTrail(ctx, TrailFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("CountTrail() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	total, err := store.CountTrail(ctx, TrailFilter{})
	if err != nil {
		t.Fatalf("CountTrail() error = %v", err)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
}

// TestBadgerStoreDeleteTrail verifies the key-embedded timestamps
// drive age-based deletion.
func TestBadgerStoreDeleteTrail(t *testing.T) {
	store := newBadgerStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	seedTrail(t, store, base, 6)
	ctx := context.Background()

	deleted, err := store.DeleteTrail(ctx, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("DeleteTrail() error = %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	remaining, err := store.CountTrail(ctx, TrailFilter{})
	if err != nil {
		t.Fatalf("CountTrail() error = %v", err)
	}
	if remaining != 3 {
		t.Errorf("remaining = %d, want 3", remaining)
	}

	// Entries at exactly the cutoff stay: "older than" is strict.
	survivors, err := store.QueryTrail(ctx, TrailFilter{})
	if err != nil {
		t.Fatalf("QueryTrail() error = %v", err)
	}
	if survivors[len(survivors)-1].ID != "e3" {
		t.Errorf("oldest survivor = %s, want e3", survivors[len(survivors)-1].ID)
	}
}

// TestBadgerStorePersistence verifies data survives a database reopen.
func TestBadgerStorePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	factory, err := NewStoreFactory(StoreBadger, dir)
	if err != nil {
		t.Fatalf("NewStoreFactory() error = %v", err)
	}
	store := factory.CreateStore()

	if err := store.SaveConsent(ctx, "ns", &ConsentRecord{UserID: "u1", Granted: true}); err != nil {
		t.Fatalf("SaveConsent() error = %v", err)
	}
	if err := store.AppendTrail(ctx, &TrailEntry{
		ID:        "e1",
		Timestamp: time.Now().UTC(),
		Action:    ActionConsentGranted,
	}); err != nil {
		t.Fatalf("AppendTrail() error = %v", err)
	}
	if err := factory.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewStoreFactory(StoreBadger, dir)
	if err != nil {
		t.Fatalf("reopen NewStoreFactory() error = %v", err)
	}
	defer reopened.Close()
	store = reopened.CreateStore()

	rec, err := store.GetConsent(ctx, "ns", "u1")
	if err != nil {
		t.Fatalf("GetConsent() after reopen error = %v", err)
	}
	if !rec.Granted {
		t.Error("Granted = false after reopen, want true")
	}

	count, err := store.CountTrail(ctx, TrailFilter{})
	if err != nil {
		t.Fatalf("CountTrail() after reopen error = %v", err)
	}
	if count != 1 {
		t.Errorf("trail entries after reopen = %d, want 1", count)
	}
}

// TestBadgerStoreDeleteChunking verifies cleanup handles more keys
// than one delete chunk.
func TestBadgerStoreDeleteChunking(t *testing.T) {
	store := newBadgerStore(t)
	ctx := context.Background()
	base := time.Now().UTC().AddDate(0, 0, -10)

	total := deleteChunkSize + 50
	for i := 0; i < total; i++ {
		ent := &TrailEntry{
			ID:        fmt.Sprintf("bulk-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Action:    "seed",
		}
		if err := store.AppendTrail(ctx, ent); err != nil {
			t.Fatalf("AppendTrail() error = %v", err)
		}
	}

	deleted, err := store.DeleteTrail(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteTrail() error = %v", err)
	}
	if deleted != int64(total) {
		t.Errorf("deleted = %d, want %d", deleted, total)
	}

	remaining, err := store.CountTrail(ctx, TrailFilter{})
	if err != nil {
		t.Fatalf("CountTrail() error = %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

// TestStoreFactoryMemory verifies the memory path opens no database.
func TestStoreFactoryMemory(t *testing.T) {
	factory, err := NewStoreFactory(StoreMemory, "")
	if err != nil {
		t.Fatalf("NewStoreFactory() error = %v", err)
	}
	defer factory.Close()

	if factory.DB() != nil {
		t.Error("DB() != nil for memory store")
	}
	if _, ok := factory.CreateStore().(*MemoryStore); !ok {
		t.Error("CreateStore() should return a MemoryStore")
	}
}

// TestStoreFactoryBadger verifies the badger path opens a database at
// the given directory.
func TestStoreFactoryBadger(t *testing.T) {
	factory, err := NewStoreFactory(StoreBadger, t.TempDir())
	if err != nil {
		t.Fatalf("NewStoreFactory() error = %v", err)
	}
	defer factory.Close()

	if factory.DB() == nil {
		t.Error("DB() = nil for badger store")
	}
	if _, ok := factory.CreateStore().(*BadgerStore); !ok {
		t.Error("CreateStore() should return a BadgerStore")
	}
}
