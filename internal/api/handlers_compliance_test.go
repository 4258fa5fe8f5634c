// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/compliance"
	"github.com/tomtom215/tabularium/internal/config"
)

// complianceRouter builds a full router around an enforcing engine.
// Consent endpoints take their user from the URL, so tests drive
// them through chi rather than calling handlers directly.
func complianceRouter(t *testing.T) http.Handler {
	t.Helper()
	eng := testEngine(t, nil)
	h := NewHandler(testRegistry(t, nil), eng, nil, &config.ServerConfig{CORSOrigins: []string{"*"}}, "")
	return NewRouter(h)
}

func doRequest(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("User-Agent", "compliance-test/1.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConsentGrantRevokeRoundtrip(t *testing.T) {
	router := complianceRouter(t)

	w := doRequest(router, "POST", "/api/v1/consent/user-1/grant")
	if w.Code != http.StatusOK {
		t.Fatalf("grant status = %d, want 200\nbody: %s", w.Code, w.Body.String())
	}
	data := dataMap(t, decodeResponse(t, w))
	if data["hasConsent"] != true {
		t.Error("hasConsent = false after grant")
	}
	if data["action"] != "grant" {
		t.Errorf("action = %v, want grant", data["action"])
	}

	w = doRequest(router, "GET", "/api/v1/consent/user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status lookup = %d, want 200", w.Code)
	}
	if data := dataMap(t, decodeResponse(t, w)); data["hasConsent"] != true {
		t.Error("status hasConsent = false, want true")
	}

	w = doRequest(router, "POST", "/api/v1/consent/user-1/revoke")
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, want 200", w.Code)
	}
	if data := dataMap(t, decodeResponse(t, w)); data["hasConsent"] != false {
		t.Error("hasConsent = true after revoke")
	}
}

func TestConsentStatusUnknownUser(t *testing.T) {
	router := complianceRouter(t)

	w := doRequest(router, "GET", "/api/v1/consent/stranger")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if data := dataMap(t, decodeResponse(t, w)); data["hasConsent"] != false {
		t.Error("hasConsent = true for unknown user")
	}
}

func TestConsentEndpointsWithoutEngine(t *testing.T) {
	h := NewHandler(testRegistry(t, nil), nil, nil, &config.ServerConfig{CORSOrigins: []string{"*"}}, "")
	router := NewRouter(h)

	endpoints := []struct {
		method string
		target string
	}{
		{"POST", "/api/v1/consent/u/grant"},
		{"POST", "/api/v1/consent/u/revoke"},
		{"GET", "/api/v1/consent/u"},
		{"GET", "/api/v1/compliance/trail"},
		{"GET", "/api/v1/compliance/export"},
	}

	for _, ep := range endpoints {
		w := doRequest(router, ep.method, ep.target)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s status = %d, want 503", ep.method, ep.target, w.Code)
		}
	}
}

func TestComplianceTrailRecordsConsentChanges(t *testing.T) {
	router := complianceRouter(t)

	doRequest(router, "POST", "/api/v1/consent/alice/grant")
	doRequest(router, "POST", "/api/v1/consent/bob/grant")
	doRequest(router, "POST", "/api/v1/consent/alice/revoke")

	// The trail writer drains a buffered channel; poll until all of
	// alice's consent changes are visible.
	var entries []any
	waitFor(t, 2*time.Second, func() bool {
		w := doRequest(router, "GET", "/api/v1/compliance/trail?user_id=alice")
		if w.Code != http.StatusOK {
			t.Fatalf("trail status = %d, want 200\nbody: %s", w.Code, w.Body.String())
		}
		data := dataMap(t, decodeResponse(t, w))
		entries, _ = data["entries"].([]any)
		return len(entries) >= 2
	})
	for _, raw := range entries {
		ent := raw.(map[string]any)
		if ent["userId"] != "alice" {
			t.Errorf("filtered trail contains user %v", ent["userId"])
		}
	}
}

func TestComplianceTrailActionFilter(t *testing.T) {
	router := complianceRouter(t)

	doRequest(router, "POST", "/api/v1/consent/carol/grant")
	doRequest(router, "POST", "/api/v1/consent/carol/revoke")

	waitFor(t, 2*time.Second, func() bool {
		w := doRequest(router, "GET", "/api/v1/compliance/trail?action="+compliance.ActionConsentRevoked)
		data := dataMap(t, decodeResponse(t, w))
		entries, _ := data["entries"].([]any)
		return len(entries) == 1
	})
}

func TestComplianceTrailRejectsBadTimes(t *testing.T) {
	router := complianceRouter(t)

	for _, target := range []string{
		"/api/v1/compliance/trail?start_time=yesterday",
		"/api/v1/compliance/trail?end_time=junk",
	} {
		w := doRequest(router, "GET", target)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, w.Code)
		}
	}
}

func TestComplianceTrailTimeWindow(t *testing.T) {
	router := complianceRouter(t)

	doRequest(router, "POST", "/api/v1/consent/dave/grant")

	// A window entirely in the past excludes the fresh entry.
	past := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	cutoff := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	w := doRequest(router, "GET", "/api/v1/compliance/trail?start_time="+past+"&end_time="+cutoff)
	if w.Code != http.StatusOK {
		t.Fatalf("trail status = %d, want 200", w.Code)
	}
	data := dataMap(t, decodeResponse(t, w))
	if entries, _ := data["entries"].([]any); len(entries) != 0 {
		t.Errorf("past window returned %d entries, want 0", len(entries))
	}
}

func TestComplianceExport(t *testing.T) {
	router := complianceRouter(t)

	doRequest(router, "POST", "/api/v1/consent/erin/grant")

	w := doRequest(router, "GET", "/api/v1/compliance/export")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200\nbody: %s", w.Code, w.Body.String())
	}

	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="compliance-snapshot.json"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	var snapshot compliance.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot.ExportedAt.IsZero() {
		t.Error("ExportedAt is zero")
	}

	found := false
	for _, rec := range snapshot.Consents {
		if rec.UserID == "erin" && rec.Granted {
			found = true
		}
	}
	if !found {
		t.Errorf("snapshot consents missing erin: %+v", snapshot.Consents)
	}
}
