package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/chittychain/pkg/evidence"
)

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE a = ?", "SELECT * FROM t WHERE a = $1"},
		{"INSERT INTO t VALUES (?, ?, ?)", "INSERT INTO t VALUES ($1, $2, $3)"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, rebindDollar(tc.in))
	}
}

func TestPQDuplicateScope(t *testing.T) {
	assert.Equal(t, ScopeContent, pqDuplicateScope(&pq.Error{Code: "23505", Constraint: "artifacts_fingerprint_key"}))
	assert.Equal(t, ScopeFilename, pqDuplicateScope(&pq.Error{Code: "23505", Constraint: "artifacts_case_id_original_filename_key"}))
	assert.Equal(t, DuplicateScope(""), pqDuplicateScope(&pq.Error{Code: "23503"}))
	assert.Equal(t, DuplicateScope(""), pqDuplicateScope(assert.AnError))
	assert.Equal(t, DuplicateScope(""), pqDuplicateScope(nil))
}

func TestPostgresGuardedUpdateStale(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)

	mock.ExpectExec(`UPDATE artifacts SET minting = \$1 WHERE id = \$2 AND minting = \$3`).
		WithArgs("Ready", "ART-AAAA0001", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Zero rows and an existing artifact means a stale guard.
	mock.ExpectQuery(`SELECT .+ FROM artifacts WHERE id = \$1`).
		WithArgs("ART-AAAA0001").
		WillReturnRows(artifactRows("ART-AAAA0001", "Minted"))

	err = s.UpdateMinting(context.Background(), "ART-AAAA0001", evidence.MintPending, evidence.MintReady)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGuardedUpdateSuccess(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)

	mock.ExpectExec(`UPDATE artifacts SET minting = \$1 WHERE id = \$2 AND minting = \$3`).
		WithArgs("Ready", "ART-AAAA0001", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateMinting(context.Background(), "ART-AAAA0001", evidence.MintPending, evidence.MintReady))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func artifactRows(id, minting string) *sqlmock.Rows {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return sqlmock.NewRows([]string{
		"id", "case_id", "submitter_id", "evidence_type", "tier", "weight",
		"fingerprint", "original_filename", "source_verification", "chitty_verify",
		"chitty_verified_at", "chitty_signature", "minting", "audit_notes",
		"created_at", "last_verified_at",
	}).AddRow(id, "COOK-2024-D-007847", "REG-00001", "document", "GOVERNMENT", 0.95,
		"sha256:h1", "deed.pdf", "Pending", "Unverified", nil, "", minting, "", now, nil)
}
