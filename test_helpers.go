package main

import (
	"context"
	"database/sql"

	"github.com/vsamanullah/migverify/integrity"
)

// MockConnectionFactory is a mock implementation of ConnectionFactory for testing
type MockConnectionFactory struct {
	OpenFunc func(ctx context.Context, envCfg EnvironmentConfig) (*sql.DB, error)

	// Track calls for verification
	OpenCalled bool
	OpenedEnv  EnvironmentConfig
}

func (m *MockConnectionFactory) Open(ctx context.Context, envCfg EnvironmentConfig) (*sql.DB, error) {
	m.OpenCalled = true
	m.OpenedEnv = envCfg
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, envCfg)
	}
	return nil, nil
}

// MockCapturer is a mock implementation of Capturer for testing
type MockCapturer struct {
	CaptureFunc func(ctx context.Context, db *sql.DB, opts integrity.CaptureOptions) (*integrity.Snapshot, error)

	CaptureCalled bool
	CapturedOpts  integrity.CaptureOptions
}

func (m *MockCapturer) Capture(ctx context.Context, db *sql.DB, opts integrity.CaptureOptions) (*integrity.Snapshot, error) {
	m.CaptureCalled = true
	m.CapturedOpts = opts
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, db, opts)
	}
	return &integrity.Snapshot{FormatVersion: integrity.FormatVersion, Tables: map[string]integrity.TableSnapshot{}}, nil
}

// MockSnapshotStore is a mock implementation of SnapshotStore for testing
type MockSnapshotStore struct {
	SaveFunc func(path string, snap *integrity.Snapshot) error
	LoadFunc func(path string) (*integrity.Snapshot, error)

	SaveCalled bool
	SavedPath  string
	LoadCalled bool
	LoadedPath string
}

func (m *MockSnapshotStore) Save(path string, snap *integrity.Snapshot) error {
	m.SaveCalled = true
	m.SavedPath = path
	if m.SaveFunc != nil {
		return m.SaveFunc(path, snap)
	}
	return nil
}

func (m *MockSnapshotStore) Load(path string) (*integrity.Snapshot, error) {
	m.LoadCalled = true
	m.LoadedPath = path
	if m.LoadFunc != nil {
		return m.LoadFunc(path)
	}
	return &integrity.Snapshot{FormatVersion: integrity.FormatVersion, Tables: map[string]integrity.TableSnapshot{}}, nil
}

// MockVerifier is a mock implementation of Verifier for testing
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, db *sql.DB, baseline *integrity.Snapshot, opts integrity.VerifyOptions) ([]integrity.Result, error)

	VerifyCalled bool
	VerifiedOpts integrity.VerifyOptions
}

func (m *MockVerifier) Verify(ctx context.Context, db *sql.DB, baseline *integrity.Snapshot, opts integrity.VerifyOptions) ([]integrity.Result, error) {
	m.VerifyCalled = true
	m.VerifiedOpts = opts
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, db, baseline, opts)
	}
	return nil, nil
}

// MockRestorer is a mock implementation of Restorer for testing
type MockRestorer struct {
	RestoreFunc func(ctx context.Context, db *sql.DB, snap *integrity.Snapshot) (*integrity.RestoreSummary, error)

	RestoreCalled bool
}

func (m *MockRestorer) Restore(ctx context.Context, db *sql.DB, snap *integrity.Snapshot) (*integrity.RestoreSummary, error) {
	m.RestoreCalled = true
	if m.RestoreFunc != nil {
		return m.RestoreFunc(ctx, db, snap)
	}
	return &integrity.RestoreSummary{
		Deleted:  map[string]int64{},
		Inserted: map[string]int64{},
		Failed:   map[string]string{},
	}, nil
}
