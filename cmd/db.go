package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"acuvalidator/internal/dialect"
	"acuvalidator/internal/logging"
	"acuvalidator/internal/schema"

	"github.com/spf13/viper"
)

// liveDB is an open connection to the database of an Acumatica instance.
type liveDB struct {
	db      *sql.DB
	driver  string
	dialect dialect.Dialect
	schema  string
}

// openDB connects using the active "databases" entry, falling back to --dsn/--driver.
func openDB(ctx context.Context) (*liveDB, error) {
	config, err := GetActiveDBConfig()
	if err != nil {
		connStr := viper.GetString("database.dsn")
		if connStr == "" {
			return nil, fmt.Errorf("no database configured: %w", err)
		}
		config = &DBConfig{Name: "CLI", Driver: viper.GetString("database.driver"), DSN: connStr, Active: true}
		if config.Driver == "" {
			config.Driver = detectDriver(connStr)
		}
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	logging.WithComponent("db").Infof("Connected to %s via %s", config.Name, config.Driver)
	return &liveDB{
		db:      db,
		driver:  config.Driver,
		dialect: dialect.GetDialect(config.Driver),
		schema:  viper.GetString("database.schema"),
	}, nil
}

func detectDriver(connStr string) string {
	switch {
	case strings.HasPrefix(connStr, "sqlserver://") || strings.Contains(strings.ToLower(connStr), "initial catalog"):
		return "sqlserver"
	case strings.HasPrefix(connStr, "oracle://"):
		return "oracle"
	case strings.Contains(connStr, "postgres") || strings.Contains(connStr, "sslmode"):
		return "postgres"
	default:
		return "mysql"
	}
}

func (l *liveDB) Close() error {
	return l.db.Close()
}

// columnSource exposes the custom columns of the database to the reconciler.
func (l *liveDB) columnSource(prefix string) *schema.LiveSource {
	return &schema.LiveSource{DB: l.db, Dialect: l.dialect, Schema: l.schema, Prefix: prefix}
}
