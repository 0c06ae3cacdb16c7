package dialect

// Dialect abstracts database-specific schema introspection.
type Dialect interface {
	// Metadata Queries (Schema Introspection)
	GetTablesQuery(schema string) string
	GetColumnsQuery(schema string) string
	GetCurrentSchemaQuery() string

	// Helpers
	NormalizeType(sqlType string) string
	GetSchemaName(input string) string
	Placeholder(index int) string // Returns ?, $1, @p1, etc.
}
