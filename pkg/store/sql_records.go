package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"
)

func (s *SQLStore) InsertFact(ctx context.Context, f *evidence.AtomicFact) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO facts (
		id, artifact_id, fact_text, fact_type, classification_level, weight,
		credibility_factors, supports_theories, contradicts_theories, minting,
		extracted_at, verified_at, contradiction_id, event_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.ArtifactID, f.Text, f.FactType, f.ClassificationLevel, f.Weight,
		marshalFactors(f.CredibilityFactors), marshalStrings(f.SupportsTheories),
		marshalStrings(f.ContradictsTheories), string(f.Minting),
		fmtTime(f.ExtractedAt), fmtTimePtr(f.VerifiedAt), f.ContradictionID, fmtTimePtr(f.EventAt),
	)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

const factCols = `id, artifact_id, fact_text, fact_type, classification_level, weight,
	credibility_factors, supports_theories, contradicts_theories, minting,
	extracted_at, verified_at, contradiction_id, event_at`

func scanFact(row interface{ Scan(...interface{}) error }) (*evidence.AtomicFact, error) {
	var f evidence.AtomicFact
	var factors, supports, contradicts, minting, extractedAt string
	var verifiedAt, eventAt sql.NullString
	err := row.Scan(&f.ID, &f.ArtifactID, &f.Text, &f.FactType, &f.ClassificationLevel,
		&f.Weight, &factors, &supports, &contradicts, &minting, &extractedAt,
		&verifiedAt, &f.ContradictionID, &eventAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan fact: %w", err)
	}
	f.CredibilityFactors = unmarshalFactors(factors)
	f.SupportsTheories = unmarshalStrings(supports)
	f.ContradictsTheories = unmarshalStrings(contradicts)
	f.Minting = evidence.MintingStatus(minting)
	f.ExtractedAt = parseTime(extractedAt)
	f.VerifiedAt = parseTimePtr(verifiedAt)
	f.EventAt = parseTimePtr(eventAt)
	return &f, nil
}

func (s *SQLStore) GetFact(ctx context.Context, id string) (*evidence.AtomicFact, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+factCols+` FROM facts WHERE id = ?`), id)
	return scanFact(row)
}

func (s *SQLStore) listFacts(ctx context.Context, query string, args ...interface{}) ([]*evidence.AtomicFact, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.AtomicFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListFactsByCase(ctx context.Context, caseID string) ([]*evidence.AtomicFact, error) {
	return s.listFacts(ctx, `SELECT `+factColsPrefixed+` FROM facts f
		JOIN artifacts a ON a.id = f.artifact_id WHERE a.case_id = ? ORDER BY f.id`, caseID)
}

const factColsPrefixed = `f.id, f.artifact_id, f.fact_text, f.fact_type, f.classification_level, f.weight,
	f.credibility_factors, f.supports_theories, f.contradicts_theories, f.minting,
	f.extracted_at, f.verified_at, f.contradiction_id, f.event_at`

func (s *SQLStore) ListFactsByArtifact(ctx context.Context, artifactID string) ([]*evidence.AtomicFact, error) {
	return s.listFacts(ctx, `SELECT `+factCols+` FROM facts WHERE artifact_id = ? ORDER BY id`, artifactID)
}

func (s *SQLStore) MarkContradicted(ctx context.Context, factID, contradictionID, classification string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE facts SET contradiction_id = ?, classification_level = ? WHERE id = ?`),
		contradictionID, classification, factID)
	if err != nil {
		return fmt.Errorf("mark contradicted: %w", err)
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

func (s *SQLStore) AppendCustody(ctx context.Context, e *evidence.CustodyEntry) (*evidence.CustodyEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin custody tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(1) FROM artifacts WHERE id = ?`), e.ArtifactID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("custody artifact check: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var seq uint64
	err = tx.QueryRowContext(ctx, s.rebind(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM custody_entries WHERE artifact_id = ?`), e.ArtifactID).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("custody seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO custody_entries (
		artifact_id, seq, custodian_id, date_received, date_transferred,
		transfer_method, integrity_method, integrity_verified, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ArtifactID, seq, e.CustodianID, fmtTime(e.DateReceived),
		fmtTimePtr(e.DateTransferred), e.TransferMethod, e.IntegrityMethod,
		boolToInt(e.IntegrityVerified), e.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("append custody: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit custody: %w", err)
	}

	out := *e
	out.Seq = seq
	return &out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLStore) ListCustody(ctx context.Context, artifactID string) ([]*evidence.CustodyEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT
		artifact_id, seq, custodian_id, date_received, date_transferred,
		transfer_method, integrity_method, integrity_verified, notes
		FROM custody_entries WHERE artifact_id = ? ORDER BY seq`), artifactID)
	if err != nil {
		return nil, fmt.Errorf("list custody: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.CustodyEntry
	for rows.Next() {
		var e evidence.CustodyEntry
		var received string
		var transferred sql.NullString
		var verified int
		if err := rows.Scan(&e.ArtifactID, &e.Seq, &e.CustodianID, &received,
			&transferred, &e.TransferMethod, &e.IntegrityMethod, &verified, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan custody: %w", err)
		}
		e.DateReceived = parseTime(received)
		e.DateTransferred = parseTimePtr(transferred)
		e.IntegrityVerified = verified != 0
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list custody: %w", err)
	}
	return out, nil
}

func (s *SQLStore) InsertContradiction(ctx context.Context, c *evidence.Contradiction) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO contradictions (
		id, case_id, conflict_type, fact_ids, winning_fact_id, resolution_method,
		detected_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.CaseID, string(c.ConflictType), marshalStrings(c.FactIDs),
		c.WinningFactID, c.ResolutionMethod, fmtTime(c.DetectedAt), fmtTimePtr(c.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert contradiction: %w", err)
	}
	return nil
}

func scanContradiction(row interface{ Scan(...interface{}) error }) (*evidence.Contradiction, error) {
	var c evidence.Contradiction
	var conflictType, factIDs, detectedAt string
	var resolvedAt sql.NullString
	err := row.Scan(&c.ID, &c.CaseID, &conflictType, &factIDs, &c.WinningFactID,
		&c.ResolutionMethod, &detectedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contradiction: %w", err)
	}
	c.ConflictType = evidence.ConflictType(conflictType)
	c.FactIDs = unmarshalStrings(factIDs)
	c.DetectedAt = parseTime(detectedAt)
	c.ResolvedAt = parseTimePtr(resolvedAt)
	return &c, nil
}

const contradictionCols = `id, case_id, conflict_type, fact_ids, winning_fact_id, resolution_method, detected_at, resolved_at`

func (s *SQLStore) GetContradiction(ctx context.Context, id string) (*evidence.Contradiction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+contradictionCols+` FROM contradictions WHERE id = ?`), id)
	return scanContradiction(row)
}

func (s *SQLStore) ResolveContradiction(ctx context.Context, id, winningFactID, method string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE contradictions
		SET winning_fact_id = ?, resolution_method = ?, resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL`),
		winningFactID, method, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("resolve contradiction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetContradiction(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrAlreadyResolved
}

func (s *SQLStore) ListUnresolved(ctx context.Context, caseID string) ([]*evidence.Contradiction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+contradictionCols+` FROM contradictions WHERE case_id = ? AND resolved_at IS NULL ORDER BY id`), caseID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.Contradiction
	for rows.Next() {
		c, err := scanContradiction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unresolved: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListContradictionsByCase(ctx context.Context, caseID string) ([]*evidence.Contradiction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+contradictionCols+` FROM contradictions WHERE case_id = ? ORDER BY id`), caseID)
	if err != nil {
		return nil, fmt.Errorf("list contradictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.Contradiction
	for rows.Next() {
		c, err := scanContradiction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contradictions: %w", err)
	}
	return out, nil
}

func (s *SQLStore) AppendAudit(ctx context.Context, e *evidence.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO audit_entries (
		id, actor_id, action, artifact_id, ts, ip_address, session_id, success, severity, detail
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.ActorID, e.Action, e.ArtifactID, fmtTime(e.Timestamp),
		e.IPAddress, e.SessionID, boolToInt(e.Success), string(e.Severity), e.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *SQLStore) QueryAudit(ctx context.Context, f AuditFilter) ([]*evidence.AuditEntry, error) {
	query := `SELECT id, actor_id, action, artifact_id, ts, ip_address, session_id,
		success, severity, detail FROM audit_entries WHERE 1 = 1`
	var args []interface{}
	if f.ActorID != "" {
		query += ` AND actor_id = ?`
		args = append(args, f.ActorID)
	}
	if f.ArtifactID != "" {
		query += ` AND artifact_id = ?`
		args = append(args, f.ArtifactID)
	}
	query += ` ORDER BY ts DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.AuditEntry
	for rows.Next() {
		var e evidence.AuditEntry
		var ts, severity string
		var success int
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ArtifactID, &ts,
			&e.IPAddress, &e.SessionID, &success, &severity, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.Success = success != 0
		e.Severity = evidence.AuditSeverity(severity)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return out, nil
}

func (s *SQLStore) MintBlock(ctx context.Context, b *evidence.Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mint tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Precondition pass first: if any artifact is not Ready the whole mint
	// fails with nothing written.
	for _, id := range b.ArtifactIDs {
		var minting string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT minting FROM artifacts WHERE id = ?`), id).Scan(&minting)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mint precondition: %w", err)
		}
		if evidence.MintingStatus(minting) != evidence.MintReady {
			return ErrStaleStatus
		}
	}

	var maxIdx sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(idx) FROM blocks`).Scan(&maxIdx); err != nil {
		return fmt.Errorf("mint head check: %w", err)
	}
	if maxIdx.Valid && uint64(maxIdx.Int64)+1 != b.Index {
		return ErrStaleStatus
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO blocks (
		idx, previous_hash, aggregate_hash, block_hash, artifact_ids, created_at
	) VALUES (?, ?, ?, ?, ?, ?)`),
		b.Index, b.PreviousHash, b.AggregateHash, b.BlockHash,
		marshalStrings(b.ArtifactIDs), fmtTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append block: %w", err)
	}

	for _, id := range b.ArtifactIDs {
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE artifacts SET minting = ? WHERE id = ? AND minting = ?`),
			string(evidence.MintMinted), id, string(evidence.MintReady))
		if err != nil {
			return fmt.Errorf("flip minted: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			return ErrStaleStatus
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mint: %w", err)
	}
	return nil
}

func scanBlock(row interface{ Scan(...interface{}) error }) (*evidence.Block, error) {
	var b evidence.Block
	var artifactIDs, createdAt string
	err := row.Scan(&b.Index, &b.PreviousHash, &b.AggregateHash, &b.BlockHash, &artifactIDs, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	b.ArtifactIDs = unmarshalStrings(artifactIDs)
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

const blockCols = `idx, previous_hash, aggregate_hash, block_hash, artifact_ids, created_at`

func (s *SQLStore) HeadBlock(ctx context.Context) (*evidence.Block, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blockCols+` FROM blocks ORDER BY idx DESC LIMIT 1`)
	return scanBlock(row)
}

func (s *SQLStore) ListBlocks(ctx context.Context) ([]*evidence.Block, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blockCols+` FROM blocks ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return out, nil
}

var _ Store = (*SQLStore)(nil)
