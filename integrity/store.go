package integrity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// FormatVersion is the snapshot interchange format produced by this
// release. Readers reject documents with any other version rather than
// silently misparsing them.
const FormatVersion = 1

// SaveSnapshot writes the snapshot as a versioned JSON document.
func SaveSnapshot(path string, snap *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	if err := WriteSnapshot(f, snap); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

// WriteSnapshot serializes the snapshot to w.
func WriteSnapshot(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// LoadSnapshot reads and validates a snapshot document. Every failure mode
// (missing file, malformed JSON, unsupported version) surfaces as a
// SnapshotFormatError so callers can abort before any table is processed.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SnapshotFormatError{Path: path, Err: err}
	}
	defer f.Close()

	snap, err := ReadSnapshot(f)
	if err != nil {
		return nil, &SnapshotFormatError{Path: path, Err: err}
	}
	return snap, nil
}

// ReadSnapshot deserializes and validates a snapshot from r.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("malformed snapshot document: %w", err)
	}
	if snap.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d (supported: %d)", snap.FormatVersion, FormatVersion)
	}
	if snap.Tables == nil {
		snap.Tables = map[string]TableSnapshot{}
	}
	// Table names live as map keys in the document; propagate them back
	// into the schema descriptors.
	for name, ts := range snap.Tables {
		ts.Name = name
		snap.Tables[name] = ts
	}
	return &snap, nil
}

// IsFormatError reports whether err is a snapshot document failure.
func IsFormatError(err error) bool {
	var fe *SnapshotFormatError
	return errors.As(err, &fe)
}

// IsConnectionError reports whether err means the database is unreachable.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
