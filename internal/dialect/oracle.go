package dialect

import (
	"fmt"
	"strings"
)

type OracleDialect struct{}

func (d *OracleDialect) GetTablesQuery(schema string) string {
	// USER_TABLES lists tables owned by the current user.
	// We include a dummy clause to consume the schema argument if passed by standard callers.
	return `SELECT TABLE_NAME FROM USER_TABLES WHERE ` + d.Placeholder(0) + ` IS NOT NULL`
}

func (d *OracleDialect) GetColumnsQuery(schema string) string {
	return fmt.Sprintf(`
SELECT
    t.TABLE_NAME,
    t.COLUMN_NAME,
    t.DATA_TYPE,
    CASE WHEN t.NULLABLE = 'Y' THEN 'YES' ELSE 'NO' END
FROM USER_TAB_COLUMNS t
JOIN USER_TABLES u ON u.TABLE_NAME = t.TABLE_NAME
WHERE %s IS NOT NULL
ORDER BY t.TABLE_NAME, t.COLUMN_ID`, d.Placeholder(0))
}

func (d *OracleDialect) GetCurrentSchemaQuery() string {
	return "SELECT SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA') FROM DUAL"
}

func (d *OracleDialect) Placeholder(index int) string {
	// Oracle uses :1, :2, etc. (1-based index)
	return fmt.Sprintf(":%d", index+1)
}

func (d *OracleDialect) NormalizeType(sqlType string) string {
	s := strings.ToLower(sqlType)
	if strings.Contains(s, "char") || strings.Contains(s, "clob") {
		return "string"
	}
	if strings.Contains(s, "int") || strings.Contains(s, "number") || strings.Contains(s, "float") {
		return "integer"
	}
	if strings.Contains(s, "date") || strings.Contains(s, "time") || strings.Contains(s, "year") {
		return "datetime"
	}
	return s
}

func (d *OracleDialect) GetSchemaName(input string) string {
	return input
}
