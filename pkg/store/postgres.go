package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// NewPostgresStore wraps an existing Postgres database handle.
// The schema is shared with the SQLite variant; only placeholder syntax and
// constraint-error mapping differ.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:             db,
		rebind:         rebindDollar,
		duplicateScope: pqDuplicateScope,
	}
}

// OpenPostgres connects to Postgres and ensures the schema exists.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// rebindDollar converts `?` placeholders to Postgres `$n` positional args.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func pqDuplicateScope(err error) DuplicateScope {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ""
	}
	// 23505 = unique_violation
	if pqErr.Code != "23505" {
		return ""
	}
	if strings.Contains(pqErr.Constraint, "fingerprint") {
		return ScopeContent
	}
	return ScopeFilename
}
