// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Trail actions recorded by the engine for administrative and
// enforcement events.
const (
	// ActionConsentGranted records a user granting logging consent.
	ActionConsentGranted = "consent.granted"

	// ActionConsentRevoked records a user revoking logging consent.
	ActionConsentRevoked = "consent.revoked"

	// ActionConfigUpdated records a compliance configuration change.
	ActionConfigUpdated = "compliance.config_updated"

	// ActionEntrySuppressed records a log entry vetoed by consent or
	// regional restriction.
	ActionEntrySuppressed = "logging.suppressed"

	// ActionTrailCleared records an age-based trail pruning run.
	ActionTrailCleared = "audit.trail_cleared"

	// ActionDataExported records a regulatory data export.
	ActionDataExported = "compliance.data_exported"
)

// Trail entry results.
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultError   = "error"
)

// ErrNoConsentRecord is returned by stores when a user has no consent
// record under the requested storage key.
var ErrNoConsentRecord = errors.New("no consent record")

// ConsentRecord is one user's current consent decision. Records are
// upserted in place: revoking consent overwrites the record with
// Granted false rather than deleting it, so the decision history stays
// reconstructible from the audit trail.
type ConsentRecord struct {
	// UserID identifies the consenting user.
	UserID string `json:"userId"`

	// Granted is the current consent state.
	Granted bool `json:"granted"`

	// Timestamp of the most recent decision.
	Timestamp time.Time `json:"timestamp"`

	// IPAddress the decision was made from, if known.
	IPAddress string `json:"ipAddress,omitempty"`

	// UserAgent of the client that made the decision, if known.
	UserAgent string `json:"userAgent,omitempty"`
}

// ConsentSource captures where a consent decision came from.
type ConsentSource struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ConsentSourceFromRequest extracts the source from an HTTP request,
// preferring proxy-forwarded addresses over the direct peer.
func ConsentSourceFromRequest(r *http.Request) ConsentSource {
	source := ConsentSource{
		UserAgent: r.UserAgent(),
	}

	// Check X-Forwarded-For header first (for reverse proxy setups)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		source.IPAddress = strings.TrimSpace(parts[0])
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		source.IPAddress = xri
	} else {
		// Strip the port from RemoteAddr
		host := r.RemoteAddr
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}
		source.IPAddress = host
	}

	return source
}

// TrailEntry is one record in the append-only audit trail.
type TrailEntry struct {
	// ID is a unique entry identifier, generated when empty.
	ID string `json:"id"`

	// Timestamp when the recorded action happened.
	Timestamp time.Time `json:"timestamp"`

	// Action names what happened, e.g. "consent.granted".
	Action string `json:"action"`

	// UserID is the affected or acting user, if any.
	UserID string `json:"userId,omitempty"`

	// Resource names what was acted on, if any.
	Resource string `json:"resource,omitempty"`

	// Result is the outcome: success, denied, or error.
	Result string `json:"result,omitempty"`

	// Details carries structured context for the action.
	Details map[string]any `json:"details,omitempty"`
}

// TrailFilter selects trail entries for queries and counts.
// Zero-value fields do not constrain the result.
type TrailFilter struct {
	// UserID filters by affected user.
	UserID string `json:"userId,omitempty"`

	// Action filters by exact action name.
	Action string `json:"action,omitempty"`

	// Result filters by outcome.
	Result string `json:"result,omitempty"`

	// StartTime filters entries at or after this time.
	StartTime *time.Time `json:"startTime,omitempty"`

	// EndTime filters entries at or before this time.
	EndTime *time.Time `json:"endTime,omitempty"`

	// SearchText matches case-insensitively against action and resource.
	SearchText string `json:"searchText,omitempty"`

	// Limit caps the result size. Zero means no limit.
	Limit int `json:"limit,omitempty"`

	// Offset skips this many matching entries, newest first.
	Offset int `json:"offset,omitempty"`
}

// DefaultTrailFilter returns a filter with sensible pagination defaults.
func DefaultTrailFilter() TrailFilter {
	return TrailFilter{
		Limit: 100,
	}
}

// IsZero reports whether the filter constrains nothing beyond pagination.
func (f TrailFilter) IsZero() bool {
	return f.UserID == "" &&
		f.Action == "" &&
		f.Result == "" &&
		f.StartTime == nil &&
		f.EndTime == nil &&
		f.SearchText == ""
}

// Store persists consent records and the audit trail.
//
// Consent records live under a storage key so one store can serve
// several consent namespaces; the engine passes its configured
// consentStorageKey on every call. The trail is append-only and
// pruned solely through DeleteTrail.
type Store interface {
	// SaveConsent upserts the record for record.UserID under storageKey.
	SaveConsent(ctx context.Context, storageKey string, record *ConsentRecord) error

	// GetConsent retrieves one user's record. Returns ErrNoConsentRecord
	// when the user has none.
	GetConsent(ctx context.Context, storageKey, userID string) (*ConsentRecord, error)

	// ListConsent returns every record under storageKey, ordered by user id.
	ListConsent(ctx context.Context, storageKey string) ([]ConsentRecord, error)

	// AppendTrail persists a trail entry.
	AppendTrail(ctx context.Context, entry *TrailEntry) error

	// QueryTrail returns matching trail entries, newest first.
	QueryTrail(ctx context.Context, filter TrailFilter) ([]TrailEntry, error)

	// CountTrail returns the number of matching trail entries.
	CountTrail(ctx context.Context, filter TrailFilter) (int64, error)

	// DeleteTrail removes entries older than the given time and reports
	// how many were removed.
	DeleteTrail(ctx context.Context, olderThan time.Time) (int64, error)
}

// Snapshot is a point-in-time regulatory export of compliance state.
type Snapshot struct {
	// ExportedAt is when the snapshot was taken.
	ExportedAt time.Time `json:"exportedAt"`

	// Config is the compliance configuration active at export time.
	Config *Config `json:"config"`

	// Consents are all consent records under the active storage key.
	Consents []ConsentRecord `json:"consentRecords"`

	// Trail is the full audit trail, newest first.
	Trail []TrailEntry `json:"auditTrail"`
}
