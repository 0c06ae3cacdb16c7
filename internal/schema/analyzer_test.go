package schema_test

import (
	"context"
	"testing"

	"acuvalidator/internal/dialect"
	"acuvalidator/internal/schema"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAnalyze_MSSQL(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	d := dialect.GetDialect("sqlserver")

	mock.ExpectQuery(d.GetTablesQuery("dbo")).WithArgs("dbo").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("SOOrder").AddRow("ARInvoice"))
	mock.ExpectQuery(d.GetColumnsQuery("dbo")).WithArgs("dbo").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("SOOrder", "OrderNbr", "nvarchar", "NO").
			AddRow("soorder", "UsrDeliveryNote", "nvarchar", "YES").
			AddRow("ARInvoice", "UsrApproved", "bit", "YES").
			AddRow("Unknown", "UsrGhost", "int", "YES"))

	tables, err := schema.Analyze(context.Background(), db, d, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	if len(tables) != 2 {
		t.Fatalf("Expected 2 tables, got %d", len(tables))
	}
	if len(tables[0].Columns) != 2 {
		t.Errorf("Expected SOOrder to collect 2 columns (case-insensitive table match), got %d", len(tables[0].Columns))
	}
	if got := tables[1].Columns[0].DataType; got != "boolean" {
		t.Errorf("Expected bit to normalize to boolean, got %s", got)
	}
	if !tables[1].Columns[0].IsNullable {
		t.Error("Expected UsrApproved to be nullable")
	}

	declared := schema.DeclaredColumns(tables, "usr")
	if len(declared) != 2 {
		t.Fatalf("Expected 2 usr columns, got %d: %v", len(declared), declared)
	}
	if declared[0] != (schema.DeclaredColumn{OwnerTable: "SOOrder", Name: "UsrDeliveryNote", DataType: "varchar", Nullable: true}) {
		t.Errorf("unexpected first column: %+v", declared[0])
	}
}

func TestAnalyze_MySQLResolvesCurrentSchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	d := dialect.GetDialect("mysql")

	mock.ExpectQuery(d.GetCurrentSchemaQuery()).
		WillReturnRows(sqlmock.NewRows([]string{"DATABASE()"}).AddRow("acumatica"))
	mock.ExpectQuery(d.GetTablesQuery("acumatica")).WithArgs("acumatica").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("Contact"))
	mock.ExpectQuery(d.GetColumnsQuery("acumatica")).WithArgs("acumatica").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("Contact", "UsrNickname", "VARCHAR", "YES"))

	tables, err := schema.Analyze(context.Background(), db, d, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(tables) != 1 || len(tables[0].Columns) != 1 {
		t.Fatalf("unexpected tables: %+v", tables)
	}
	if tables[0].Columns[0].DataType != "varchar" {
		t.Errorf("Expected lowercase type, got %s", tables[0].Columns[0].DataType)
	}
}

func TestDeclaredColumns_EmptyPrefixKeepsAll(t *testing.T) {
	tables := []*schema.Table{
		{Name: "DAC1", Columns: []*schema.Column{{Name: "usrField1"}, {Name: "NoteID"}}},
	}

	if got := len(schema.DeclaredColumns(tables, "")); got != 2 {
		t.Errorf("Expected 2 columns, got %d", got)
	}
	if got := len(schema.DeclaredColumns(tables, "USR")); got != 1 {
		t.Errorf("Expected prefix to be case-insensitive, got %d", got)
	}
}
