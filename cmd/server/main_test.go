// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package main

import (
	"testing"
	"time"

	"github.com/tomtom215/tabularium/internal/compliance"
	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/level"
)

func TestBuildPipeline(t *testing.T) {
	t.Parallel()

	t.Run("without compliance engine the gate is absent", func(t *testing.T) {
		t.Parallel()

		p := buildPipeline(config.Default(), nil)

		if p.Sanitizer == nil {
			t.Error("expected sanitizer stage")
		}
		// A typed nil in the interface field would pass the registry's
		// nil check and panic on first use.
		if p.Compliance != nil {
			t.Error("expected no compliance stage for nil engine")
		}
	})

	t.Run("with compliance engine the gate is wired", func(t *testing.T) {
		t.Parallel()

		engine := compliance.NewEngine(nil, nil)
		defer engine.Close()

		p := buildPipeline(config.Default(), engine)

		if p.Compliance == nil {
			t.Fatal("expected compliance stage")
		}
	})
}

func TestNewSanitizer(t *testing.T) {
	t.Parallel()

	t.Run("compiles configured rules", func(t *testing.T) {
		t.Parallel()

		sec := config.SecurityConfig{
			EnableSanitization: true,
			CustomRules: []config.SanitizationRule{
				{
					Name:     "card-number",
					Pattern:  `\b\d{4}-\d{4}-\d{4}-\d{4}\b`,
					Priority: 50,
					Mask:     "[card]",
				},
			},
		}

		eng := newSanitizer(&sec)

		ent := entry.New(level.Info, "billing", "charge 4111-1111-1111-1111 accepted")
		got := eng.SanitizeEntry(ent)
		if got.Message != "[card]" {
			t.Errorf("Message = %q, want [card]", got.Message)
		}
	})

	t.Run("skips rules with invalid patterns", func(t *testing.T) {
		t.Parallel()

		sec := config.SecurityConfig{
			EnableSanitization: true,
			CustomRules: []config.SanitizationRule{
				{Name: "broken", Pattern: `(unclosed`, Mask: "x"},
				{Name: "card-number", Pattern: `\b\d{4}-\d{4}-\d{4}-\d{4}\b`, Mask: "[card]"},
			},
		}

		eng := newSanitizer(&sec)

		ent := entry.New(level.Info, "billing", "charge 4111-1111-1111-1111 accepted")
		got := eng.SanitizeEntry(ent)
		if got.Message != "[card]" {
			t.Errorf("Message = %q, want [card] from the surviving rule", got.Message)
		}
	})

	t.Run("disabled sanitization passes entries through", func(t *testing.T) {
		t.Parallel()

		sec := config.SecurityConfig{EnableSanitization: false}
		eng := newSanitizer(&sec)

		ent := entry.New(level.Info, "app", "password=hunter2")
		if got := eng.SanitizeEntry(ent); got.Message != "password=hunter2" {
			t.Errorf("Message = %q, want unchanged", got.Message)
		}
	})
}

func TestComplianceEngineConfig(t *testing.T) {
	t.Parallel()

	src := config.ComplianceConfig{
		Enabled:           true,
		DataRetentionDays: 30,
		RequireConsent:    true,
		AnonymizeIPs:      true,
		EnableAuditTrail:  true,
		RestrictedRegions: []string{"EU", "UK"},
		ConsentStorageKey: "user_id",
		AuditFields:       []string{"user_id", "ip"},
		AuditMaxAgeDays:   14,
		CleanupInterval:   6 * time.Hour,
	}

	got := complianceEngineConfig(&src)

	if !got.Enabled || !got.RequireConsent || !got.AnonymizeIPs || !got.EnableAuditTrail {
		t.Error("boolean settings not carried over")
	}
	if got.DataRetentionDays != 30 {
		t.Errorf("DataRetentionDays = %d, want 30", got.DataRetentionDays)
	}
	if len(got.RestrictedRegions) != 2 || got.RestrictedRegions[0] != "EU" {
		t.Errorf("RestrictedRegions = %v, want [EU UK]", got.RestrictedRegions)
	}
	if got.ConsentStorageKey != "user_id" {
		t.Errorf("ConsentStorageKey = %q, want user_id", got.ConsentStorageKey)
	}
	if got.AuditMaxAgeDays != 14 || got.CleanupInterval != 6*time.Hour {
		t.Errorf("retention settings = %d days / %v, want 14 / 6h", got.AuditMaxAgeDays, got.CleanupInterval)
	}
}

func TestInitCompliance(t *testing.T) {
	t.Parallel()

	t.Run("disabled compliance returns nil components", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Compliance.Enabled = false

		engine, factory, err := initCompliance(cfg)
		if err != nil {
			t.Fatalf("initCompliance() error = %v", err)
		}
		if engine != nil || factory != nil {
			t.Error("expected nil engine and factory when compliance is disabled")
		}
	})

	t.Run("memory store", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Compliance.Enabled = true
		cfg.Compliance.Store = "memory"

		engine, factory, err := initCompliance(cfg)
		if err != nil {
			t.Fatalf("initCompliance() error = %v", err)
		}
		if engine == nil || factory == nil {
			t.Fatal("expected engine and factory")
		}
		if err := engine.Close(); err != nil {
			t.Errorf("engine.Close() error = %v", err)
		}
		if err := factory.Close(); err != nil {
			t.Errorf("factory.Close() error = %v", err)
		}
	})

	t.Run("badger store", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Compliance.Enabled = true
		cfg.Compliance.Store = "badger"
		cfg.Compliance.StorePath = t.TempDir()

		engine, factory, err := initCompliance(cfg)
		if err != nil {
			t.Fatalf("initCompliance() error = %v", err)
		}
		if err := engine.Close(); err != nil {
			t.Errorf("engine.Close() error = %v", err)
		}
		if err := factory.Close(); err != nil {
			t.Errorf("factory.Close() error = %v", err)
		}
	})
}
