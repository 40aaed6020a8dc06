package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chittyos/chittychain/pkg/store"
)

// Exporter writes the audit trail as JSON lines for off-system archival.
type Exporter struct {
	recorder Recorder
}

func NewExporter(r Recorder) *Exporter {
	return &Exporter{recorder: r}
}

// ExportResult summarizes a completed export.
type ExportResult struct {
	EntryCount  int       `json:"entry_count"`
	Checksum    string    `json:"checksum"` // SHA-256 over the exported bytes
	GeneratedAt time.Time `json:"generated_at"`
}

// Export writes matching entries newest-first, one JSON object per line,
// and returns a checksum over the exported bytes so the archive can be
// verified independently.
func (e *Exporter) Export(ctx context.Context, f store.AuditFilter, w io.Writer) (*ExportResult, error) {
	entries, err := e.recorder.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit export query: %w", err)
	}

	h := sha256.New()
	out := io.MultiWriter(w, h)
	enc := json.NewEncoder(out)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("audit export encode: %w", err)
		}
	}

	return &ExportResult{
		EntryCount:  len(entries),
		Checksum:    hex.EncodeToString(h.Sum(nil)),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
