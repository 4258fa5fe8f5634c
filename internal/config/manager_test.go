// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package config

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("NewManager(nil) error = %v", err)
	}
	return m
}

func TestNewManagerDefaults(t *testing.T) {
	m := newTestManager(t)

	cfg := m.Current()
	if cfg.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info", cfg.DefaultLevel)
	}
	if _, ok := cfg.Appenders["console"]; !ok {
		t.Error("defaults should carry the console appender")
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.DefaultLevel = "verbose"

	_, err := NewManager(cfg)
	if err == nil {
		t.Fatal("NewManager should reject an invalid config")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error should be a *ValidationError, got %T", err)
	}
}

func TestNewManagerClonesInput(t *testing.T) {
	cfg := Default()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	// Mutating the input after construction must not reach the manager.
	cfg.DefaultLevel = "fatal"
	cfg.Appenders["console"] = AppenderConfig{Name: "console", Type: "noop"}

	got := m.Current()
	if got.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info (manager must hold its own copy)", got.DefaultLevel)
	}
	if got.Appenders["console"].Type != "console" {
		t.Errorf("Appenders[console].Type = %q, want console", got.Appenders["console"].Type)
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	m := newTestManager(t)

	first := m.Current()
	first.DefaultLevel = "fatal"
	first.Security.SensitiveFields = append(first.Security.SensitiveFields, "ssn")
	delete(first.Appenders, "console")

	second := m.Current()
	if second.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info (Current must return a copy)", second.DefaultLevel)
	}
	if _, ok := second.Appenders["console"]; !ok {
		t.Error("console appender should survive mutation of an earlier copy")
	}
}

func TestUpdateMergesDottedKeys(t *testing.T) {
	m := newTestManager(t)

	result, err := m.Update(map[string]any{
		"security.maskChar": "#",
		"server.port":       9001,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if result.Config.Security.MaskChar != "#" {
		t.Errorf("Security.MaskChar = %q, want #", result.Config.Security.MaskChar)
	}
	if result.Config.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", result.Config.Server.Port)
	}

	// Untouched fields keep their values.
	cfg := m.Current()
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info", cfg.DefaultLevel)
	}
}

func TestUpdateMergesNestedMaps(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(map[string]any{
		"server": map[string]any{
			"port":    9002,
			"timeout": "45s",
		},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	cfg := m.Current()
	if cfg.Server.Port != 9002 {
		t.Errorf("Server.Port = %d, want 9002", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 45*time.Second {
		t.Errorf("Server.Timeout = %v, want 45s", cfg.Server.Timeout)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0 (merge must not clear siblings)", cfg.Server.Host)
	}
}

func TestUpdateOverridesBooleanToFalse(t *testing.T) {
	m := newTestManager(t)

	if !m.Current().Security.EnableSanitization {
		t.Fatal("sanitization should start enabled")
	}

	_, err := m.Update(map[string]any{
		"security": map[string]any{"enableSanitization": false},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if m.Current().Security.EnableSanitization {
		t.Error("Security.EnableSanitization should be false after update")
	}
}

func TestUpdateAddsMapEntriesWithoutRemoving(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(map[string]any{
		"appenders": map[string]any{
			"audit-file": map[string]any{
				"name":   "audit-file",
				"type":   "file",
				"active": true,
				"layout": "json",
				"properties": map[string]any{
					"path": "/var/log/audit.jsonl",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	cfg := m.Current()
	if _, ok := cfg.Appenders["audit-file"]; !ok {
		t.Error("Appenders should contain the added audit-file")
	}
	if _, ok := cfg.Appenders["console"]; !ok {
		t.Error("Appenders should keep the existing console entry")
	}
}

func TestUpdateKeepsDottedCategoryKeys(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(map[string]any{
		"loggers": map[string]any{
			"app.db": map[string]any{
				"category":  "app.db",
				"level":     "debug",
				"appenders": []string{"console"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	cfg := m.Current()
	lg, ok := cfg.Loggers["app.db"]
	if !ok {
		t.Fatalf("Loggers should contain app.db as one key, got: %v", loggerKeys(cfg))
	}
	if lg.Level != "debug" {
		t.Errorf("Loggers[app.db].Level = %q, want debug", lg.Level)
	}
}

func TestUpdateInvalidLeavesCurrentUntouched(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Update(map[string]any{
		"defaultLevel": "verbose",
		"server.port":  9003,
	})
	if err == nil {
		t.Fatal("Update() should fail for an unknown level")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error should be a *ValidationError, got %T: %v", err, err)
	}

	// Nothing from the rejected update may leak in, not even valid keys.
	cfg := m.Current()
	if cfg.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info", cfg.DefaultLevel)
	}
	if cfg.Server.Port != 8187 {
		t.Errorf("Server.Port = %d, want 8187", cfg.Server.Port)
	}
}

func TestUpdateEmptyRejected(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Update(nil); err == nil {
		t.Error("Update(nil) should fail")
	}
	if _, err := m.Update(map[string]any{}); err == nil {
		t.Error("Update(empty) should fail")
	}
}

func TestUpdateSurfacesWarnings(t *testing.T) {
	m := newTestManager(t)

	result, err := m.Update(map[string]any{
		"loggers": map[string]any{
			"quiet": map[string]any{
				"category": "quiet",
				"level":    "info",
			},
		},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(result.Warnings) == 0 {
		t.Error("expected a no-appenders warning on the result")
	}

	// Warnings do not block the change.
	if _, ok := m.Current().Loggers["quiet"]; !ok {
		t.Error("logger quiet should have been applied despite the warning")
	}
}

func TestSetReplacesWholesale(t *testing.T) {
	m := newTestManager(t)

	replacement := Default()
	delete(replacement.Appenders, "console")
	replacement.DefaultLevel = "error"

	result, err := m.Set(replacement)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if result.Config.DefaultLevel != "error" {
		t.Errorf("DefaultLevel = %q, want error", result.Config.DefaultLevel)
	}

	// Set is a full replace: removal works, unlike Update's merge.
	cfg := m.Current()
	if _, ok := cfg.Appenders["console"]; ok {
		t.Error("console appender should be gone after Set")
	}
}

func TestSetRejectsNilAndInvalid(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Set(nil); err == nil {
		t.Error("Set(nil) should fail")
	}

	bad := Default()
	bad.Server.Port = 0
	if _, err := m.Set(bad); err == nil {
		t.Error("Set should reject an invalid config")
	}

	if m.Current().Server.Port != 8187 {
		t.Error("rejected Set must leave the current config untouched")
	}
}

func TestWatchNotifiesAndUnsubscribes(t *testing.T) {
	m := newTestManager(t)

	var calls int
	var lastPort int
	unsubscribe := m.Watch(func(cfg *Config) {
		calls++
		lastPort = cfg.Server.Port
	})

	if _, err := m.Update(map[string]any{"server.port": 9010}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if lastPort != 9010 {
		t.Errorf("lastPort = %d, want 9010", lastPort)
	}

	// A failed update must not notify.
	if _, err := m.Update(map[string]any{"defaultLevel": "bogus"}); err == nil {
		t.Fatal("expected update failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d after failed update, want 1", calls)
	}

	unsubscribe()
	if _, err := m.Update(map[string]any{"server.port": 9011}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d after unsubscribe, want 1", calls)
	}

	// Unsubscribing twice is a no-op.
	unsubscribe()
}

func TestWatcherGetsItsOwnCopy(t *testing.T) {
	m := newTestManager(t)

	m.Watch(func(cfg *Config) {
		cfg.DefaultLevel = "fatal"
		delete(cfg.Appenders, "console")
	})

	if _, err := m.Update(map[string]any{"server.port": 9020}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	cfg := m.Current()
	if cfg.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info (watcher mutation must not leak)", cfg.DefaultLevel)
	}
	if _, ok := cfg.Appenders["console"]; !ok {
		t.Error("console appender should survive watcher mutation")
	}
}

func TestWatchersNotifiedInRegistrationOrder(t *testing.T) {
	m := newTestManager(t)

	var order []string
	m.Watch(func(*Config) { order = append(order, "first") })
	m.Watch(func(*Config) { order = append(order, "second") })
	m.Watch(func(*Config) { order = append(order, "third") })

	if _, err := m.Update(map[string]any{"server.port": 9030}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestResetToDefaults(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Update(map[string]any{"defaultLevel": "error", "server.port": 9040}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	var notified bool
	m.Watch(func(cfg *Config) {
		notified = true
		if cfg.DefaultLevel != "info" {
			t.Errorf("watcher saw DefaultLevel %q, want info", cfg.DefaultLevel)
		}
	})

	got := m.ResetToDefaults()
	if got.DefaultLevel != "info" {
		t.Errorf("DefaultLevel = %q, want info", got.DefaultLevel)
	}
	if got.Server.Port != 8187 {
		t.Errorf("Server.Port = %d, want 8187", got.Server.Port)
	}
	if !notified {
		t.Error("reset should notify watchers")
	}

	cfg := m.Current()
	if cfg.Server.Port != 8187 {
		t.Errorf("Current().Server.Port = %d, want 8187", cfg.Server.Port)
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch n % 3 {
				case 0:
					if cfg := m.Current(); cfg.DefaultLevel == "" {
						t.Error("Current() returned a config without a level")
					}
				case 1:
					if _, err := m.Update(map[string]any{"server.port": 9100 + n}); err != nil {
						t.Errorf("Update() error = %v", err)
					}
				default:
					unsubscribe := m.Watch(func(*Config) {})
					unsubscribe()
				}
			}
		}(i)
	}
	wg.Wait()

	if result := m.Current().Validate(); !result.Valid() {
		t.Errorf("config invalid after concurrent use: %v", result.Errors)
	}
}
