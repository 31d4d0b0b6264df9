package main

import (
	"context"
	"database/sql"

	"github.com/vsamanullah/migverify/integrity"
)

type LiveCapturer struct{}

func NewLiveCapturer() Capturer {
	return &LiveCapturer{}
}

func (c *LiveCapturer) Capture(ctx context.Context, db *sql.DB, opts integrity.CaptureOptions) (*integrity.Snapshot, error) {
	return integrity.NewSnapshotCapturer(db, opts).Capture(ctx)
}

type FileSnapshotStore struct{}

func NewFileSnapshotStore() SnapshotStore {
	return &FileSnapshotStore{}
}

func (s *FileSnapshotStore) Save(path string, snap *integrity.Snapshot) error {
	return integrity.SaveSnapshot(path, snap)
}

func (s *FileSnapshotStore) Load(path string) (*integrity.Snapshot, error) {
	return integrity.LoadSnapshot(path)
}

type LiveVerifier struct{}

func NewLiveVerifier() Verifier {
	return &LiveVerifier{}
}

func (v *LiveVerifier) Verify(ctx context.Context, db *sql.DB, baseline *integrity.Snapshot, opts integrity.VerifyOptions) ([]integrity.Result, error) {
	return integrity.NewVerifier(db, opts).Verify(ctx, baseline)
}

type LiveRestorer struct{}

func NewLiveRestorer() Restorer {
	return &LiveRestorer{}
}

func (r *LiveRestorer) Restore(ctx context.Context, db *sql.DB, snap *integrity.Snapshot) (*integrity.RestoreSummary, error) {
	return integrity.NewRestorer(db).Restore(ctx, snap)
}
