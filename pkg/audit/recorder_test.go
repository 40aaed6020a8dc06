package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/chittyos/chittychain/pkg/store"
)

func TestRecordAppendsEntry(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := NewStoreRecorder(s, slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)))

	entry := r.Record(ctx, "REG-00001", "artifact.admit", "ART-AAAA0001", Context{IPAddress: "10.0.0.5"}, true, "admitted")
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, evidence.SeverityInfo, entry.Severity)

	got, err := r.Query(ctx, store.AuditFilter{ArtifactID: "ART-AAAA0001"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "artifact.admit", got[0].Action)
	assert.Equal(t, "10.0.0.5", got[0].IPAddress)
}

func TestRecordSevereMarksHighSeverity(t *testing.T) {
	ctx := context.Background()
	r := NewStoreRecorder(store.NewMemoryStore(), nil)

	entry := r.RecordSevere(ctx, "REG-00001", "signature.mismatch", "ART-AAAA0001", Context{}, "stored signature failed verification")
	assert.Equal(t, evidence.SeverityHigh, entry.Severity)
	assert.False(t, entry.Success)
}

type failingAuditStore struct {
	store.AuditStore
}

func (f *failingAuditStore) AppendAudit(ctx context.Context, e *evidence.AuditEntry) error {
	return errors.New("disk full")
}

func TestRecordFailureIsBestEffort(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewStoreRecorder(&failingAuditStore{store.NewMemoryStore()}, logger)

	// Record must not propagate the store failure.
	entry := r.Record(context.Background(), "REG-00001", "artifact.admit", "", Context{}, true, "")
	require.NotNil(t, entry)
	assert.Contains(t, buf.String(), "audit write failed")
}

func TestExporterChecksumStable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := NewStoreRecorder(s, nil).WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	r.Record(ctx, "REG-00001", "artifact.admit", "ART-AAAA0001", Context{}, true, "")
	r.Record(ctx, "REG-00002", "artifact.verify", "ART-AAAA0001", Context{}, true, "")

	var out1, out2 strings.Builder
	exp := NewExporter(r)

	res1, err := exp.Export(ctx, store.AuditFilter{}, &out1)
	require.NoError(t, err)
	assert.Equal(t, 2, res1.EntryCount)

	res2, err := exp.Export(ctx, store.AuditFilter{}, &out2)
	require.NoError(t, err)
	assert.Equal(t, res1.Checksum, res2.Checksum)
	assert.Equal(t, out1.String(), out2.String())

	// One JSON object per line.
	lines := strings.Split(strings.TrimSpace(out1.String()), "\n")
	assert.Len(t, lines, 2)
}
