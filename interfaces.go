package main

import (
	"context"
	"database/sql"

	"github.com/vsamanullah/migverify/integrity"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

// ConnectionFactory produces a live queryable handle from environment
// configuration.
type ConnectionFactory interface {
	// Open connects and verifies reachability
	Open(ctx context.Context, envCfg EnvironmentConfig) (*sql.DB, error)
}

// Capturer captures a point-in-time snapshot of a live database
type Capturer interface {
	Capture(ctx context.Context, db *sql.DB, opts integrity.CaptureOptions) (*integrity.Snapshot, error)
}

// SnapshotStore persists snapshots to and from the interchange format
type SnapshotStore interface {
	Save(path string, snap *integrity.Snapshot) error
	Load(path string) (*integrity.Snapshot, error)
}

// Verifier compares a live database against a baseline snapshot
type Verifier interface {
	Verify(ctx context.Context, db *sql.DB, baseline *integrity.Snapshot, opts integrity.VerifyOptions) ([]integrity.Result, error)
}

// Restorer loads a restore-capable snapshot into a live database
type Restorer interface {
	Restore(ctx context.Context, db *sql.DB, snap *integrity.Snapshot) (*integrity.RestoreSummary, error)
}
