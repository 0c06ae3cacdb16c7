package descriptor

import "acuvalidator/internal/schema"

// DeclaredColumns collects the columns declared by the Table nodes. Columns without a
// name are skipped; a missing table name is kept as an empty owner.
func DeclaredColumns(tables []Table) []schema.DeclaredColumn {
	var out []schema.DeclaredColumn
	for _, t := range tables {
		for _, c := range t.Columns {
			if c.ColumnName == "" {
				continue
			}
			out = append(out, schema.DeclaredColumn{OwnerTable: c.TableName, Name: c.ColumnName})
		}
	}
	return out
}
