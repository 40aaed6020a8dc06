// Package audit implements the cross-cutting audit trail. Every component
// records a structured entry after completing its own state change; a failed
// audit write never rolls back the primary operation. The system prefers a
// missing audit record over blocking evidentiary progress, but flags the gap.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/store"
)

// Context carries the network/session attribution for an audit entry.
type Context struct {
	IPAddress string
	SessionID string
}

// Recorder appends and queries audit entries.
type Recorder interface {
	// Record appends one entry. Best-effort: implementations log failures
	// instead of propagating them.
	Record(ctx context.Context, actorID, action, artifactID string, auditCtx Context, success bool, detail string) *evidence.AuditEntry
	// RecordSevere appends a high-severity entry (tamper evidence and the like).
	RecordSevere(ctx context.Context, actorID, action, artifactID string, auditCtx Context, detail string) *evidence.AuditEntry
	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f store.AuditFilter) ([]*evidence.AuditEntry, error)
}

// StoreRecorder writes entries to the transactional record store.
type StoreRecorder struct {
	store  store.AuditStore
	logger *slog.Logger
	clock  func() time.Time
}

// NewStoreRecorder creates a Recorder backed by s.
func NewStoreRecorder(s store.AuditStore, logger *slog.Logger) *StoreRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRecorder{store: s, logger: logger, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (r *StoreRecorder) WithClock(clock func() time.Time) *StoreRecorder {
	r.clock = clock
	return r
}

func (r *StoreRecorder) Record(ctx context.Context, actorID, action, artifactID string, auditCtx Context, success bool, detail string) *evidence.AuditEntry {
	return r.append(ctx, actorID, action, artifactID, auditCtx, success, evidence.SeverityInfo, detail)
}

func (r *StoreRecorder) RecordSevere(ctx context.Context, actorID, action, artifactID string, auditCtx Context, detail string) *evidence.AuditEntry {
	return r.append(ctx, actorID, action, artifactID, auditCtx, false, evidence.SeverityHigh, detail)
}

func (r *StoreRecorder) append(ctx context.Context, actorID, action, artifactID string, auditCtx Context, success bool, severity evidence.AuditSeverity, detail string) *evidence.AuditEntry {
	entry := &evidence.AuditEntry{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		ArtifactID: artifactID,
		Timestamp:  r.clock().UTC(),
		IPAddress:  auditCtx.IPAddress,
		SessionID:  auditCtx.SessionID,
		Success:    success,
		Severity:   severity,
		Detail:     detail,
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		// Audit is best-effort durability, not transactional with the
		// primary write. Flag the gap and move on.
		r.logger.Warn("audit write failed",
			"action", action,
			"actor", actorID,
			"artifact", artifactID,
			"error", err,
		)
	}
	return entry
}

func (r *StoreRecorder) Query(ctx context.Context, f store.AuditFilter) ([]*evidence.AuditEntry, error) {
	return r.store.QueryAudit(ctx, f)
}

var _ Recorder = (*StoreRecorder)(nil)
