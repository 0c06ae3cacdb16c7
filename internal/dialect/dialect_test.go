package dialect_test

import (
	"strings"
	"testing"

	"acuvalidator/internal/dialect"
)

func TestGetDialect(t *testing.T) {
	tests := []struct {
		driver      string
		placeholder string
		schema      string
	}{
		{"sqlserver", "@p1", "dbo"},
		{"mssql", "@p1", "dbo"},
		{"postgres", "$1", "public"},
		{"oracle", ":1", ""},
		{"mysql", "?", ""},
		{"", "?", ""},
	}

	for _, tt := range tests {
		d := dialect.GetDialect(tt.driver)
		if got := d.Placeholder(0); got != tt.placeholder {
			t.Errorf("%s: Placeholder(0) = %s, want %s", tt.driver, got, tt.placeholder)
		}
		if got := d.GetSchemaName(""); got != tt.schema {
			t.Errorf("%s: GetSchemaName(\"\") = %q, want %q", tt.driver, got, tt.schema)
		}
		if d.GetCurrentSchemaQuery() == "" {
			t.Errorf("%s: empty current schema query", tt.driver)
		}
		for _, q := range []string{d.GetTablesQuery("x"), d.GetColumnsQuery("x")} {
			if strings.Count(q, tt.placeholder) != 1 {
				t.Errorf("%s: Expected one %s bind in %q", tt.driver, tt.placeholder, q)
			}
		}
	}
}

func TestNormalizeType(t *testing.T) {
	if got := dialect.GetDialect("sqlserver").NormalizeType("NVARCHAR"); got != "varchar" {
		t.Errorf("mssql nvarchar -> %s", got)
	}
	if got := dialect.GetDialect("postgres").NormalizeType("int8"); got != "bigint" {
		t.Errorf("postgres int8 -> %s", got)
	}
	if got := dialect.GetDialect("oracle").NormalizeType("VARCHAR2"); got != "string" {
		t.Errorf("oracle varchar2 -> %s", got)
	}
}
