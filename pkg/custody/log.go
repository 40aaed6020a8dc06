// Package custody implements the append-only chain-of-custody log. The
// log's evidentiary value depends on append-only semantics: there is no
// update or delete operation, and none exists on the underlying store.
package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chittyos/chittychain/pkg/audit"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/store"
)

// Handoff describes one custodial transfer. The integrity-check method and
// verified flag are supplied by the caller (e.g. "hash verification",
// "seal intact") and stored verbatim; the log never recomputes hashes.
type Handoff struct {
	DateReceived      time.Time
	DateTransferred   *time.Time
	TransferMethod    string
	IntegrityMethod   string
	IntegrityVerified bool
	Notes             string
}

// Log appends and lists custody entries for artifacts.
type Log struct {
	store    store.CustodyStore
	recorder audit.Recorder
	clock    func() time.Time
}

// NewLog creates a custody log over s, recording every append to the
// audit trail.
func NewLog(s store.CustodyStore, recorder audit.Recorder) *Log {
	return &Log{store: s, recorder: recorder, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Append records one custodial handoff and returns the stored entry with
// its assigned sequence number.
func (l *Log) Append(ctx context.Context, artifactID, custodianID string, h Handoff) (*evidence.CustodyEntry, error) {
	if custodianID == "" {
		return nil, errors.New("custodian reference required")
	}
	received := h.DateReceived
	if received.IsZero() {
		received = l.clock().UTC()
	}

	entry, err := l.store.AppendCustody(ctx, &evidence.CustodyEntry{
		ArtifactID:        artifactID,
		CustodianID:       custodianID,
		DateReceived:      received,
		DateTransferred:   h.DateTransferred,
		TransferMethod:    h.TransferMethod,
		IntegrityMethod:   h.IntegrityMethod,
		IntegrityVerified: h.IntegrityVerified,
		Notes:             h.Notes,
	})
	if err != nil {
		l.recorder.Record(ctx, custodianID, "custody.append", artifactID, audit.Context{}, false, err.Error())
		return nil, fmt.Errorf("custody append: %w", err)
	}

	l.recorder.Record(ctx, custodianID, "custody.append", artifactID, audit.Context{}, true,
		fmt.Sprintf("handoff %d via %s", entry.Seq, entry.TransferMethod))
	return entry, nil
}

// List returns every custody entry for the artifact in insertion order.
// The read is restartable and never mutates the log.
func (l *Log) List(ctx context.Context, artifactID string) ([]*evidence.CustodyEntry, error) {
	entries, err := l.store.ListCustody(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("custody list: %w", err)
	}
	return entries, nil
}
