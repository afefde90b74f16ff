package migrate

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// OpenPostgres opens the database/sql handle goose runs against. It uses
// lib/pq rather than the gorm pool so a failing migration statement reports
// a *pq.Error with its SQLSTATE and position.
func OpenPostgres(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return sql.OpenDB(connector), nil
}
