// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package compliance enforces data-protection rules on the logging
// pipeline and keeps the regulatory audit trail.
//
// The engine sits between entry construction and appender fan-out.
// Before an entry is dispatched the logger asks IsLoggingAllowed; a
// vetoed entry is dropped silently, the caller never sees an error.
// Entries that pass are stamped by ApplyComplianceRules with a
// retention date and, when configured, IP anonymization.
//
// # Overview
//
// The compliance system provides:
//   - Consent gating: entries from users without a granted consent
//     record are suppressed when consent is required
//   - Regional restriction: entries from restricted environments are
//     suppressed entirely
//   - IP anonymization: IPv4 addresses in context and metadata have
//     their last octet zeroed (192.168.1.100 -> 192.168.1.0)
//   - Retention stamping: every processed entry carries
//     metadata.retentionDate and metadata.complianceEnabled
//   - An append-only audit trail of administrative and enforcement
//     events with age-based pruning
//   - Regulatory export of consent records, trail, and active config
//
// # Trail Actions
//
// The engine records the following actions:
//   - consent.granted, consent.revoked: consent administration
//   - compliance.config_updated: configuration changes
//   - logging.suppressed: entries vetoed by consent or region
//   - audit.trail_cleared: age-based pruning runs
//   - compliance.data_exported: regulatory exports
//
// # Architecture
//
// Trail writes use a producer-consumer pattern:
//
//	AddTrailEntry() -> Trail Buffer (chan) -> Async Writer -> Store
//	                        |                     |
//	                   Non-blocking          Background goroutine
//
// Consent decisions write synchronously so the next IsLoggingAllowed
// call observes them; only the trail is buffered.
//
// # Usage Example
//
//	factory, err := compliance.NewStoreFactory(compliance.StoreBadger, "/data/compliance")
//	if err != nil {
//	    return err
//	}
//	defer factory.Close()
//
//	engine := compliance.NewEngine(factory.CreateStore(), &compliance.Config{
//	    Enabled:           true,
//	    DataRetentionDays: 365,
//	    RequireConsent:    true,
//	    AnonymizeIPs:      true,
//	    EnableAuditTrail:  true,
//	    RestrictedRegions: []string{"restricted-eu"},
//	})
//	defer engine.Close()
//
//	engine.GrantConsent(ctx, "u1", compliance.ConsentSourceFromRequest(r))
//
//	if engine.IsLoggingAllowed(entryContext) {
//	    stamped := engine.ApplyComplianceRules(ent)
//	    // dispatch stamped entry
//	}
//
// # Retention
//
// Automatic trail cleanup runs at the configured interval:
//
//	engine.StartCleanupRoutine(ctx)
//	// Trail entries older than AuditMaxAgeDays are deleted
//
// Entry-level retention is advisory: the stamped retentionDate tells
// downstream storage when the entry expires, it is not enforced here.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use:
//   - Configuration is swapped atomically under a mutex
//   - Trail writes go through a buffered channel
//   - Store implementations use appropriate synchronization
//
// # See Also
//
//   - internal/logger: calls the veto and stamping operations
//   - internal/config: ComplianceConfig carries the wire-format knobs
//   - internal/api: consent grant/revoke and export handlers
package compliance
