package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"acuvalidator/internal/dialect"
)

// ---------------------------------------------------------------------
// 1. Live Schema Analysis
// ---------------------------------------------------------------------

// Analyze reads tables and columns of the target schema. An empty schemaName is resolved
// through the dialect's default, then through the connection's current schema.
func Analyze(ctx context.Context, db *sql.DB, d dialect.Dialect, schemaName string) ([]*Table, error) {
	// [Interface-First]: Delegate schema resolution to the dialect
	target := d.GetSchemaName(schemaName)
	if target == "" {
		if err := db.QueryRowContext(ctx, d.GetCurrentSchemaQuery()).Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to resolve current schema: %w", err)
		}
		if target == "" {
			return nil, fmt.Errorf("no schema selected in DSN")
		}
	}

	// Normalized keys for case-insensitive matching (Oracle support)
	tableMap := make(map[string]*Table)
	var tables []*Table

	// --- Step 1: Fetch Tables ---
	rows, err := db.QueryContext(ctx, d.GetTablesQuery(target), target)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		t := &Table{Name: name}
		tableMap[strings.ToUpper(name)] = t
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	// --- Step 2: Fetch Columns ---
	colRows, err := db.QueryContext(ctx, d.GetColumnsQuery(target), target)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var tName, cName, dType, isNull sql.NullString
		if err := colRows.Scan(&tName, &cName, &dType, &isNull); err != nil {
			return nil, fmt.Errorf("failed to scan column (table: %s): %w", tName.String, err)
		}

		if !tName.Valid || !cName.Valid {
			continue // Skip invalid rows
		}

		if t, ok := tableMap[strings.ToUpper(tName.String)]; ok {
			t.Columns = append(t.Columns, &Column{
				Name:       cName.String,
				DataType:   d.NormalizeType(dType.String),
				IsNullable: strings.EqualFold(isNull.String, "YES"),
			})
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	return tables, nil
}

// ---------------------------------------------------------------------
// 2. Declared Column Projection
// ---------------------------------------------------------------------

// DeclaredColumns flattens live tables into declared columns, keeping only column names
// that start with prefix (case-insensitive). An empty prefix keeps everything.
func DeclaredColumns(tables []*Table, prefix string) []DeclaredColumn {
	prefix = strings.ToLower(prefix)
	var out []DeclaredColumn
	for _, t := range tables {
		for _, c := range t.Columns {
			if !strings.HasPrefix(strings.ToLower(c.Name), prefix) {
				continue
			}
			out = append(out, DeclaredColumn{
				OwnerTable: t.Name,
				Name:       c.Name,
				DataType:   c.DataType,
				Nullable:   c.IsNullable,
			})
		}
	}
	return out
}
