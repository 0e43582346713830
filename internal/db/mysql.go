package db

import (
	"database/sql"

	"race-timing-ingest/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	conn, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(cfg.Database.MaxConnections)
	conn.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	conn.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return conn, nil
}
