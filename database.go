package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"

	"github.com/vsamanullah/migverify/integrity"
)

// ConnectionString renders the environment as a lib/pq key=value DSN.
func (e EnvironmentConfig) ConnectionString() string {
	sslmode := e.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		"host=" + e.Host,
		fmt.Sprintf("port=%d", e.Port),
		"dbname=" + e.Database,
		"user=" + e.Username,
		"sslmode=" + sslmode,
	}
	if e.Password != "" {
		parts = append(parts, "password="+e.Password)
	}
	return strings.Join(parts, " ")
}

type PostgresConnectionFactory struct{}

func NewPostgresConnectionFactory() ConnectionFactory {
	return &PostgresConnectionFactory{}
}

// Open connects to the environment's database and verifies reachability.
// Any failure here is a ConnectionError: fatal for the whole run.
func (f *PostgresConnectionFactory) Open(ctx context.Context, envCfg EnvironmentConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", envCfg.ConnectionString())
	if err != nil {
		return nil, &integrity.ConnectionError{Err: fmt.Errorf("opening connection: %w", err)}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &integrity.ConnectionError{Err: fmt.Errorf("pinging %s:%d/%s: %w", envCfg.Host, envCfg.Port, envCfg.Database, err)}
	}

	slog.Info("database connection ready", "host", envCfg.Host, "database", envCfg.Database)
	return db, nil
}
