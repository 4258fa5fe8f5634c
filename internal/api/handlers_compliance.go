// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/compliance"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// ConsentGrant handles POST /api/v1/consent/{userId}/grant. The
// grant is attributed to the caller's IP and user agent in the
// activity trail.
func (h *Handler) ConsentGrant(w http.ResponseWriter, r *http.Request) {
	h.consentChange(w, r, "grant")
}

// ConsentRevoke handles POST /api/v1/consent/{userId}/revoke.
// Subsequent entries for the user are suppressed once the revocation
// is recorded.
func (h *Handler) ConsentRevoke(w http.ResponseWriter, r *http.Request) {
	h.consentChange(w, r, "revoke")
}

func (h *Handler) consentChange(w http.ResponseWriter, r *http.Request, action string) {
	rw := NewResponseWriter(w, r)

	if h.compliance == nil {
		rw.WriteServiceUnavailable("Compliance engine unavailable")
		return
	}

	userID := chi.URLParam(r, "userId")
	if userID == "" {
		rw.WriteBadRequest("User ID is required")
		return
	}

	source := compliance.ConsentSourceFromRequest(r)

	var err error
	switch action {
	case "grant":
		err = h.compliance.GrantConsent(r.Context(), userID, source)
	case "revoke":
		err = h.compliance.RevokeConsent(r.Context(), userID, source)
	}
	if err != nil {
		rw.WriteInternalError(err)
		return
	}

	selflog.Info().
		Str("user_id", userID).
		Str("action", action).
		Msg("consent changed via API")

	rw.WriteSuccess(map[string]any{
		"userId":     userID,
		"action":     action,
		"hasConsent": h.compliance.HasConsent(r.Context(), userID),
	})
}

// ConsentStatus handles GET /api/v1/consent/{userId}.
func (h *Handler) ConsentStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.compliance == nil {
		rw.WriteServiceUnavailable("Compliance engine unavailable")
		return
	}

	userID := chi.URLParam(r, "userId")
	if userID == "" {
		rw.WriteBadRequest("User ID is required")
		return
	}

	rw.WriteSuccess(map[string]any{
		"userId":     userID,
		"hasConsent": h.compliance.HasConsent(r.Context(), userID),
	})
}

// ComplianceTrail handles GET /api/v1/compliance/trail with optional
// user_id, action, result, start_time, and end_time filters. Times
// are RFC3339.
func (h *Handler) ComplianceTrail(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.compliance == nil {
		rw.WriteServiceUnavailable("Compliance engine unavailable")
		return
	}

	filter := compliance.TrailFilter{
		UserID: r.URL.Query().Get("user_id"),
		Action: r.URL.Query().Get("action"),
		Result: r.URL.Query().Get("result"),
	}

	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rw.WriteBadRequest("start_time must be RFC3339")
			return
		}
		filter.StartTime = &t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rw.WriteBadRequest("end_time must be RFC3339")
			return
		}
		filter.EndTime = &t
	}

	entries, err := h.compliance.Trail(r.Context(), filter)
	if err != nil {
		rw.WriteInternalError(err)
		return
	}

	rw.WriteSuccess(map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}

// ComplianceExport handles GET /api/v1/compliance/export. The full
// snapshot downloads as an attachment for subject access requests
// and audits.
func (h *Handler) ComplianceExport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.compliance == nil {
		rw.WriteServiceUnavailable("Compliance engine unavailable")
		return
	}

	snapshot, err := h.compliance.Export(r.Context())
	if err != nil {
		rw.WriteInternalError(err)
		return
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		rw.WriteInternalError(err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="compliance-snapshot.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		selflog.Error().Err(err).Msg("failed to write compliance export")
	}
}
