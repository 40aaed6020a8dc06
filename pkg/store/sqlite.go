package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"

	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql. It supports SQLite (default)
// and is the shared scan/exec layer for the Postgres variant, which differs
// only in placeholder syntax and constraint-error mapping.
type SQLStore struct {
	db *sql.DB
	// rebind converts `?` placeholders for the target driver.
	rebind func(string) string
	// duplicateScope inspects a driver constraint error, returning the
	// violated admission scope, or "" if the error is something else.
	duplicateScope func(error) DuplicateScope
}

// OpenSQLite opens (or creates) a SQLite store at path. Use ":memory:" for
// an ephemeral store.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serialized access keeps the check-then-insert window closed.
	db.SetMaxOpenConns(1)
	s := NewSQLiteStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// NewSQLiteStore wraps an existing SQLite database handle.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:             db,
		rebind:         func(q string) string { return q },
		duplicateScope: sqliteDuplicateScope,
	}
}

func sqliteDuplicateScope(err error) DuplicateScope {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return ""
	}
	if strings.Contains(msg, "artifacts.fingerprint") {
		return ScopeContent
	}
	return ScopeFilename
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	evidence_type TEXT NOT NULL,
	tier TEXT NOT NULL,
	weight REAL NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	original_filename TEXT NOT NULL,
	source_verification TEXT NOT NULL,
	chitty_verify TEXT NOT NULL,
	chitty_verified_at TEXT,
	chitty_signature TEXT NOT NULL DEFAULT '',
	minting TEXT NOT NULL,
	audit_notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	last_verified_at TEXT,
	UNIQUE (case_id, original_filename)
);
CREATE TABLE IF NOT EXISTS facts (
	id TEXT PRIMARY KEY,
	artifact_id TEXT NOT NULL,
	fact_text TEXT NOT NULL,
	fact_type TEXT NOT NULL,
	classification_level TEXT NOT NULL,
	weight REAL NOT NULL,
	credibility_factors TEXT NOT NULL DEFAULT '[]',
	supports_theories TEXT NOT NULL DEFAULT '[]',
	contradicts_theories TEXT NOT NULL DEFAULT '[]',
	minting TEXT NOT NULL,
	extracted_at TEXT NOT NULL,
	verified_at TEXT,
	contradiction_id TEXT NOT NULL DEFAULT '',
	event_at TEXT
);
CREATE TABLE IF NOT EXISTS custody_entries (
	artifact_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	custodian_id TEXT NOT NULL,
	date_received TEXT NOT NULL,
	date_transferred TEXT,
	transfer_method TEXT NOT NULL,
	integrity_method TEXT NOT NULL,
	integrity_verified INTEGER NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (artifact_id, seq)
);
CREATE TABLE IF NOT EXISTS contradictions (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL,
	conflict_type TEXT NOT NULL,
	fact_ids TEXT NOT NULL,
	winning_fact_id TEXT NOT NULL DEFAULT '',
	resolution_method TEXT NOT NULL DEFAULT '',
	detected_at TEXT NOT NULL,
	resolved_at TEXT
);
CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	artifact_id TEXT NOT NULL DEFAULT '',
	ts TEXT NOT NULL,
	ip_address TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL,
	severity TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS blocks (
	idx INTEGER PRIMARY KEY,
	previous_hash TEXT NOT NULL,
	aggregate_hash TEXT NOT NULL,
	block_hash TEXT NOT NULL,
	artifact_ids TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Migrate creates the schema if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqlSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func marshalFactors(v []evidence.CredibilityFactor) string {
	if v == nil {
		v = []evidence.CredibilityFactor{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalFactors(s string) []evidence.CredibilityFactor {
	if s == "" {
		return nil
	}
	var out []evidence.CredibilityFactor
	_ = json.Unmarshal([]byte(s), &out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *SQLStore) InsertArtifact(ctx context.Context, a *evidence.Artifact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admission tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Check both uniqueness scopes inside the transaction so concurrent
	// uploads cannot both pass. The unique constraints are the backstop.
	if dup, err := s.findConflict(ctx, tx,
		`SELECT id, last_verified_at FROM artifacts WHERE fingerprint = ?`, a.Fingerprint, ScopeContent); err != nil {
		return err
	} else if dup != nil {
		return dup
	}
	if dup, err := s.findConflict(ctx, tx,
		`SELECT id, last_verified_at FROM artifacts WHERE case_id = ? AND original_filename = ?`,
		[]interface{}{a.CaseID, a.OriginalFilename}, ScopeFilename); err != nil {
		return err
	} else if dup != nil {
		return dup
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO artifacts (
		id, case_id, submitter_id, evidence_type, tier, weight, fingerprint,
		original_filename, source_verification, chitty_verify, chitty_verified_at,
		chitty_signature, minting, audit_notes, created_at, last_verified_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.CaseID, a.SubmitterID, a.EvidenceType, string(a.Tier), a.Weight,
		a.Fingerprint, a.OriginalFilename, string(a.Source), string(a.ChittyVerify),
		fmtTimePtr(a.ChittyVerifiedAt), a.ChittySignature, string(a.Minting),
		a.AuditNotes, fmtTime(a.CreatedAt), fmtTimePtr(a.LastVerifiedAt),
	)
	if err != nil {
		if scope := s.duplicateScope(err); scope != "" {
			return s.duplicateFromConstraint(ctx, scope, a)
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if scope := s.duplicateScope(err); scope != "" {
			return s.duplicateFromConstraint(ctx, scope, a)
		}
		return fmt.Errorf("commit admission: %w", err)
	}
	return nil
}

func (s *SQLStore) findConflict(ctx context.Context, tx *sql.Tx, query string, args interface{}, scope DuplicateScope) (*DuplicateError, error) {
	var argv []interface{}
	switch v := args.(type) {
	case []interface{}:
		argv = v
	default:
		argv = []interface{}{args}
	}
	var id string
	var lastVerified sql.NullString
	err := tx.QueryRowContext(ctx, s.rebind(query), argv...).Scan(&id, &lastVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admission conflict check: %w", err)
	}
	return &DuplicateError{Scope: scope, ExistingID: id, LastVerifiedAt: parseTimePtr(lastVerified)}, nil
}

// duplicateFromConstraint resolves the conflicting artifact after losing an
// insert race to a concurrent admission.
func (s *SQLStore) duplicateFromConstraint(ctx context.Context, scope DuplicateScope, a *evidence.Artifact) error {
	var existing *evidence.Artifact
	var err error
	if scope == ScopeContent {
		existing, err = s.FindByFingerprint(ctx, a.Fingerprint)
	} else {
		existing, err = s.findByCaseFile(ctx, a.CaseID, a.OriginalFilename)
	}
	if err != nil {
		return &DuplicateError{Scope: scope}
	}
	return &DuplicateError{Scope: scope, ExistingID: existing.ID, LastVerifiedAt: existing.LastVerifiedAt}
}

const artifactCols = `id, case_id, submitter_id, evidence_type, tier, weight, fingerprint,
	original_filename, source_verification, chitty_verify, chitty_verified_at,
	chitty_signature, minting, audit_notes, created_at, last_verified_at`

func (s *SQLStore) scanArtifact(row interface{ Scan(...interface{}) error }) (*evidence.Artifact, error) {
	var a evidence.Artifact
	var tier, source, chitty, minting string
	var createdAt string
	var chittyAt, lastVerified sql.NullString
	err := row.Scan(&a.ID, &a.CaseID, &a.SubmitterID, &a.EvidenceType, &tier, &a.Weight,
		&a.Fingerprint, &a.OriginalFilename, &source, &chitty, &chittyAt,
		&a.ChittySignature, &minting, &a.AuditNotes, &createdAt, &lastVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	a.Tier = evidence.Tier(tier)
	a.Source = evidence.SourceVerification(source)
	a.ChittyVerify = evidence.ChittyVerifyStatus(chitty)
	a.Minting = evidence.MintingStatus(minting)
	a.CreatedAt = parseTime(createdAt)
	a.ChittyVerifiedAt = parseTimePtr(chittyAt)
	a.LastVerifiedAt = parseTimePtr(lastVerified)
	return &a, nil
}

func (s *SQLStore) GetArtifact(ctx context.Context, id string) (*evidence.Artifact, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+artifactCols+` FROM artifacts WHERE id = ?`), id)
	return s.scanArtifact(row)
}

func (s *SQLStore) FindByFingerprint(ctx context.Context, fingerprint string) (*evidence.Artifact, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+artifactCols+` FROM artifacts WHERE fingerprint = ?`), fingerprint)
	return s.scanArtifact(row)
}

func (s *SQLStore) findByCaseFile(ctx context.Context, caseID, filename string) (*evidence.Artifact, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+artifactCols+` FROM artifacts WHERE case_id = ? AND original_filename = ?`), caseID, filename)
	return s.scanArtifact(row)
}

// guardedUpdate runs an optimistic status update and maps a zero row count
// to ErrNotFound or ErrStaleStatus.
func (s *SQLStore) guardedUpdate(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("guarded update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetArtifact(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func (s *SQLStore) UpdateSourceVerification(ctx context.Context, id string, prior, next evidence.SourceVerification, at time.Time) error {
	if next == evidence.SourceVerified {
		return s.guardedUpdate(ctx, id,
			`UPDATE artifacts SET source_verification = ?, last_verified_at = ? WHERE id = ? AND source_verification = ?`,
			string(next), fmtTime(at), id, string(prior))
	}
	return s.guardedUpdate(ctx, id,
		`UPDATE artifacts SET source_verification = ? WHERE id = ? AND source_verification = ?`,
		string(next), id, string(prior))
}

func (s *SQLStore) UpdateChittyVerify(ctx context.Context, id string, prior, next evidence.ChittyVerifyStatus, signature string, at time.Time) error {
	return s.guardedUpdate(ctx, id,
		`UPDATE artifacts SET chitty_verify = ?, chitty_signature = ?, chitty_verified_at = ? WHERE id = ? AND chitty_verify = ?`,
		string(next), signature, fmtTime(at), id, string(prior))
}

func (s *SQLStore) UpdateMinting(ctx context.Context, id string, prior, next evidence.MintingStatus) error {
	return s.guardedUpdate(ctx, id,
		`UPDATE artifacts SET minting = ? WHERE id = ? AND minting = ?`,
		string(next), id, string(prior))
}

func (s *SQLStore) UpdateWeight(ctx context.Context, id string, weight float64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE artifacts SET weight = ? WHERE id = ?`), weight, id)
	if err != nil {
		return fmt.Errorf("update weight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) listArtifacts(ctx context.Context, query string, args ...interface{}) ([]*evidence.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.Artifact
	for rows.Next() {
		a, err := s.scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListByMinting(ctx context.Context, status evidence.MintingStatus) ([]*evidence.Artifact, error) {
	return s.listArtifacts(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE minting = ? ORDER BY id`, string(status))
}

func (s *SQLStore) ListByCase(ctx context.Context, caseID string) ([]*evidence.Artifact, error) {
	return s.listArtifacts(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE case_id = ? ORDER BY created_at`, caseID)
}
