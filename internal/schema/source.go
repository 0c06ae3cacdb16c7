package schema

import (
	"context"
	"database/sql"

	"acuvalidator/internal/dialect"
)

// LiveSource supplies declared columns read from a running database, so that fields
// deployed by another package count as declared.
type LiveSource struct {
	DB      *sql.DB
	Dialect dialect.Dialect
	Schema  string
	Prefix  string
}

func (s *LiveSource) DeclaredColumns(ctx context.Context) ([]DeclaredColumn, error) {
	tables, err := Analyze(ctx, s.DB, s.Dialect, s.Schema)
	if err != nil {
		return nil, err
	}
	return DeclaredColumns(tables, s.Prefix), nil
}
