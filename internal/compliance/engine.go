// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// DefaultConsentStorageKey namespaces consent records when the
// configuration leaves the key empty.
const DefaultConsentStorageKey = "tabularium-consent"

// Store operations on the log path and the async trail writer are
// bounded so a stalled backend degrades to suppression instead of
// blocking callers.
const (
	consentLookupTimeout = 2 * time.Second
	trailWriteTimeout    = 5 * time.Second
)

// Config holds compliance engine configuration.
type Config struct {
	// Enabled turns enforcement on. A disabled engine allows every
	// entry and stamps nothing.
	Enabled bool `json:"enabled"`

	// DataRetentionDays is the retention period stamped onto entries.
	DataRetentionDays int `json:"dataRetentionDays"`

	// RequireConsent suppresses entries without a granted consent
	// record for the context's user.
	RequireConsent bool `json:"requireConsent"`

	// AnonymizeIPs zeroes the last octet of IPv4 addresses found in
	// entry context and metadata.
	AnonymizeIPs bool `json:"anonymizeIPs"`

	// EnableAuditTrail records administrative and enforcement events.
	EnableAuditTrail bool `json:"enableAuditTrail"`

	// RestrictedRegions lists environments where logging is suppressed
	// entirely. Matching is case-insensitive.
	RestrictedRegions []string `json:"restrictedRegions,omitempty"`

	// ConsentStorageKey namespaces consent records in the store.
	// Default: tabularium-consent
	ConsentStorageKey string `json:"consentStorageKey,omitempty"`

	// AuditFields names the context fields captured into the details
	// of suppression trail entries, e.g. "userId", "environment".
	AuditFields []string `json:"auditFields,omitempty"`

	// AuditMaxAgeDays bounds trail age for the background cleanup.
	// Zero disables cleanup.
	AuditMaxAgeDays int `json:"auditMaxAgeDays,omitempty"`

	// CleanupInterval is how often the cleanup routine runs.
	// Zero disables cleanup.
	CleanupInterval time.Duration `json:"cleanupInterval,omitempty"`

	// BufferSize is the trail write buffer capacity. Fixed at
	// construction; later config updates do not resize it.
	BufferSize int `json:"bufferSize,omitempty"`
}

// DefaultConfig returns the default compliance configuration:
// enforcement off, one-year retention, daily-scale trail cleanup.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		DataRetentionDays: 365,
		ConsentStorageKey: DefaultConsentStorageKey,
		AuditMaxAgeDays:   90,
		CleanupInterval:   time.Hour,
		BufferSize:        1000,
	}
}

// clone returns a copy with its own slices.
func (c *Config) clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.RestrictedRegions = append([]string(nil), c.RestrictedRegions...)
	out.AuditFields = append([]string(nil), c.AuditFields...)
	return &out
}

// Engine enforces consent, regional restriction, anonymization, and
// retention stamping, and keeps the append-only audit trail.
//
// The veto and stamping operations never return errors: compliance
// must not be able to crash a log call. Suppression is silent toward
// the caller; the audit trail records it when enabled.
type Engine struct {
	mu         sync.RWMutex
	config     *Config
	restricted map[string]bool

	store Store

	trailCh  chan *TrailEntry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates an engine backed by the given store. A nil config
// uses DefaultConfig; a nil store uses an in-memory store.
func NewEngine(store Store, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if store == nil {
		store = NewMemoryStore(0)
	}

	cfg := normalizeConfig(config.clone())

	e := &Engine{
		config:     cfg,
		restricted: restrictedSet(cfg.RestrictedRegions),
		store:      store,
		trailCh:    make(chan *TrailEntry, cfg.BufferSize),
		stopCh:     make(chan struct{}),
	}

	e.wg.Add(1)
	go e.trailWriter()

	return e
}

// normalizeConfig fills zero values that the engine cannot run without.
func normalizeConfig(cfg *Config) *Config {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.ConsentStorageKey == "" {
		cfg.ConsentStorageKey = DefaultConsentStorageKey
	}
	return cfg
}

// restrictedSet lowercases and trims the region list for matching.
func restrictedSet(regions []string) map[string]bool {
	set := make(map[string]bool, len(regions))
	for _, r := range regions {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = true
		}
	}
	return set
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.clone()
}

// UpdateConfig replaces the active configuration. BufferSize is fixed
// at construction and ignored here. Changing ConsentStorageKey points
// the engine at a fresh consent namespace; existing records stay in
// the store under the old key.
func (e *Engine) UpdateConfig(config *Config) {
	if config == nil {
		return
	}
	cfg := normalizeConfig(config.clone())

	e.mu.Lock()
	cfg.BufferSize = e.config.BufferSize
	e.config = cfg
	e.restricted = restrictedSet(cfg.RestrictedRegions)
	e.mu.Unlock()

	e.AddTrailEntry(&TrailEntry{
		Action: ActionConfigUpdated,
		Result: ResultSuccess,
		Details: map[string]any{
			"enabled":           cfg.Enabled,
			"requireConsent":    cfg.RequireConsent,
			"anonymizeIPs":      cfg.AnonymizeIPs,
			"restrictedRegions": len(cfg.RestrictedRegions),
		},
	})
}

// snapshot returns the active config and restricted set without copying.
// The config is replaced, never mutated in place, so reads off the
// returned pointer are race-free.
func (e *Engine) snapshot() (*Config, map[string]bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config, e.restricted
}

// IsLoggingAllowed reports whether an entry carrying the given context
// may be logged. It returns false when the engine is enabled and
// either consent is required but the context's user has no granted
// record, or the context's environment is a restricted region.
//
// A missing user fails closed under RequireConsent: without a user
// there is nobody whose consent could cover the entry.
func (e *Engine) IsLoggingAllowed(c *entry.Context) bool {
	cfg, restricted := e.snapshot()
	if !cfg.Enabled {
		return true
	}

	if cfg.RequireConsent && !e.hasGrantedConsent(cfg, contextUserID(c)) {
		metrics.RecordComplianceSuppression("consent")
		e.recordSuppression(cfg, c, "consent not granted")
		return false
	}

	if c != nil && restricted[strings.ToLower(strings.TrimSpace(c.Environment))] {
		metrics.RecordComplianceSuppression("region")
		e.recordSuppression(cfg, c, "restricted region")
		return false
	}

	return true
}

// hasGrantedConsent reads the user's record from the store. Missing
// records, store errors, and empty user ids all fail closed.
func (e *Engine) hasGrantedConsent(cfg *Config, userID string) bool {
	if userID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), consentLookupTimeout)
	defer cancel()

	rec, err := e.store.GetConsent(ctx, cfg.ConsentStorageKey, userID)
	if err != nil {
		return false
	}
	return rec.Granted
}

// HasConsent reports whether the user currently holds granted consent.
func (e *Engine) HasConsent(ctx context.Context, userID string) bool {
	cfg, _ := e.snapshot()
	rec, err := e.store.GetConsent(ctx, cfg.ConsentStorageKey, userID)
	if err != nil {
		return false
	}
	return rec.Granted
}

// contextUserID extracts the user id from a possibly nil context.
func contextUserID(c *entry.Context) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.UserID)
}

// recordSuppression queues a trail entry for a vetoed log call,
// capturing the configured audit fields from the context.
func (e *Engine) recordSuppression(cfg *Config, c *entry.Context, reason string) {
	details := map[string]any{"reason": reason}
	for k, v := range captureContextFields(c, cfg.AuditFields) {
		details[k] = v
	}

	e.AddTrailEntry(&TrailEntry{
		Action:  ActionEntrySuppressed,
		UserID:  contextUserID(c),
		Result:  ResultDenied,
		Details: details,
	})
}

// captureContextFields copies the named context fields into a map.
// Unknown names are ignored; empty values are omitted.
func captureContextFields(c *entry.Context, fields []string) map[string]any {
	if c == nil || len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		var v string
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "userid":
			v = c.UserID
		case "sessionid":
			v = c.SessionID
		case "requestid":
			v = c.RequestID
		case "component":
			v = c.Component
		case "action":
			v = c.Action
		case "route":
			v = c.Route
		case "useragent":
			v = c.UserAgent
		case "environment":
			v = c.Environment
		default:
			continue
		}
		if v != "" {
			out[f] = v
		}
	}
	return out
}

// ApplyComplianceRules returns a copy of the entry with compliance
// stamps applied: with AnonymizeIPs, IPv4 addresses in context and
// metadata have their last octet zeroed; metadata always gains
// retentionDate (RFC 3339, now plus DataRetentionDays) and
// complianceEnabled. A disabled engine returns the entry unchanged.
func (e *Engine) ApplyComplianceRules(ent *entry.Entry) *entry.Entry {
	cfg, _ := e.snapshot()
	if !cfg.Enabled || ent == nil {
		return ent
	}

	out := ent.Clone()

	if cfg.AnonymizeIPs {
		if out.Context != nil {
			out.Context = anonymizeContext(out.Context)
		}
		if out.Metadata != nil {
			out.Metadata = anonymizeMap(out.Metadata)
		}
		metrics.ComplianceEntriesAnonymized.Inc()
	}

	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 2)
	}
	retention := time.Now().UTC().AddDate(0, 0, cfg.DataRetentionDays)
	out.Metadata["retentionDate"] = retention.Format(time.RFC3339)
	out.Metadata["complianceEnabled"] = true

	return out
}

// GrantConsent upserts a granted consent record for the user and
// records the grant in the audit trail.
func (e *Engine) GrantConsent(ctx context.Context, userID string, source ConsentSource) error {
	return e.saveConsent(ctx, userID, true, source)
}

// RevokeConsent overwrites the user's record with a revoked decision
// and records the revocation in the audit trail. Revoking a user who
// never granted consent still writes the record.
func (e *Engine) RevokeConsent(ctx context.Context, userID string, source ConsentSource) error {
	return e.saveConsent(ctx, userID, false, source)
}

// saveConsent writes the decision synchronously so the next
// IsLoggingAllowed call observes it.
func (e *Engine) saveConsent(ctx context.Context, userID string, granted bool, source ConsentSource) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}

	cfg, _ := e.snapshot()

	record := &ConsentRecord{
		UserID:    userID,
		Granted:   granted,
		Timestamp: time.Now().UTC(),
		IPAddress: source.IPAddress,
		UserAgent: source.UserAgent,
	}

	if err := e.store.SaveConsent(ctx, cfg.ConsentStorageKey, record); err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	metrics.RecordConsentDecision(granted)

	action := ActionConsentGranted
	if !granted {
		action = ActionConsentRevoked
	}
	e.AddTrailEntry(&TrailEntry{
		Action: action,
		UserID: userID,
		Result: ResultSuccess,
	})

	return nil
}

// AddTrailEntry queues an entry for the append-only audit trail.
// No-op unless EnableAuditTrail is set; the trail has its own flag so
// consent administration stays auditable while enforcement is off.
// The send never blocks: a full buffer drops the entry with a warning.
func (e *Engine) AddTrailEntry(ent *TrailEntry) {
	if ent == nil {
		return
	}

	cfg, _ := e.snapshot()
	if !cfg.EnableAuditTrail {
		return
	}

	if ent.Action == "" {
		selflog.Warn().Msg("audit trail entry without action, dropping")
		return
	}
	if ent.ID == "" {
		ent.ID = uuid.NewString()
	}
	if ent.Timestamp.IsZero() {
		ent.Timestamp = time.Now().UTC()
	}

	select {
	case e.trailCh <- ent:
	default:
		metrics.TrailEntriesDropped.Inc()
		selflog.Warn().
			Str("action", ent.Action).
			Msg("audit trail buffer full, dropping entry")
	}
}

// ClearOldTrail removes trail entries older than maxAgeDays days and
// returns how many were removed. maxAgeDays zero clears everything.
func (e *Engine) ClearOldTrail(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays < 0 {
		return 0, fmt.Errorf("max age days must not be negative: %d", maxAgeDays)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	deleted, err := e.store.DeleteTrail(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("delete trail: %w", err)
	}

	if deleted > 0 {
		e.AddTrailEntry(&TrailEntry{
			Action: ActionTrailCleared,
			Result: ResultSuccess,
			Details: map[string]any{
				"deleted":    deleted,
				"maxAgeDays": maxAgeDays,
			},
		})
	}

	return deleted, nil
}

// Trail returns trail entries matching the filter, newest first.
func (e *Engine) Trail(ctx context.Context, filter TrailFilter) ([]TrailEntry, error) {
	return e.store.QueryTrail(ctx, filter)
}

// Export takes a regulatory snapshot: every consent record under the
// active storage key, the full audit trail newest first, and the
// active configuration. The export itself is recorded in the trail.
func (e *Engine) Export(ctx context.Context) (*Snapshot, error) {
	cfg, _ := e.snapshot()

	consents, err := e.store.ListConsent(ctx, cfg.ConsentStorageKey)
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}

	trail, err := e.store.QueryTrail(ctx, TrailFilter{})
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}

	e.AddTrailEntry(&TrailEntry{
		Action: ActionDataExported,
		Result: ResultSuccess,
		Details: map[string]any{
			"consentRecords": len(consents),
			"trailEntries":   len(trail),
		},
	})

	return &Snapshot{
		ExportedAt: time.Now().UTC(),
		Config:     cfg.clone(),
		Consents:   consents,
		Trail:      trail,
	}, nil
}

// StartCleanupRoutine launches age-based trail pruning on the
// configured interval. The routine stops when ctx is done or the
// engine closes. No-op when cleanup is disabled by configuration.
func (e *Engine) StartCleanupRoutine(ctx context.Context) {
	cfg, _ := e.snapshot()
	if cfg.CleanupInterval <= 0 || cfg.AuditMaxAgeDays <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				cfg, _ := e.snapshot()
				deleted, err := e.ClearOldTrail(ctx, cfg.AuditMaxAgeDays)
				if err != nil {
					selflog.Error().Err(err).Msg("audit trail cleanup failed")
					continue
				}
				if deleted > 0 {
					selflog.Info().
						Int64("deleted", deleted).
						Int("maxAgeDays", cfg.AuditMaxAgeDays).
						Msg("audit trail cleanup completed")
				}
			}
		}
	}()
}

// Close stops the trail writer after draining buffered entries.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
	return nil
}

// trailWriter drains the buffer in the background. On shutdown it
// writes out everything still queued before returning.
func (e *Engine) trailWriter() {
	defer e.wg.Done()

	for {
		select {
		case ent := <-e.trailCh:
			e.writeTrail(ent)
		case <-e.stopCh:
			for {
				select {
				case ent := <-e.trailCh:
					e.writeTrail(ent)
				default:
					return
				}
			}
		}
	}
}

// writeTrail persists one entry with a bounded timeout.
func (e *Engine) writeTrail(ent *TrailEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), trailWriteTimeout)
	defer cancel()

	start := time.Now()
	err := e.store.AppendTrail(ctx, ent)
	metrics.RecordTrailWrite(time.Since(start), err)
	if err != nil {
		selflog.Error().
			Err(err).
			Str("action", ent.Action).
			Msg("audit trail write failed")
	}
}
