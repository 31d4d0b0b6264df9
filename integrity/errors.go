package integrity

import "fmt"

// ConnectionError means the database itself is unreachable or metadata
// queries cannot execute. It is fatal and aborts the entire run.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SnapshotFormatError means a snapshot document is missing, malformed, or
// carries an unsupported format version. It is fatal and aborts a run
// before any table is processed.
type SnapshotFormatError struct {
	Path string
	Err  error
}

func (e *SnapshotFormatError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Path, e.Err)
}

func (e *SnapshotFormatError) Unwrap() error { return e.Err }

// TableQueryError scopes a query failure to a single table. During
// verification it resolves to a Fail result for that table only; all other
// tables continue normally.
type TableQueryError struct {
	Table string
	Err   error
}

func (e *TableQueryError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Table, e.Err)
}

func (e *TableQueryError) Unwrap() error { return e.Err }
