package integrity

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize    = 500
	DefaultConcurrency = 4
)

// CaptureOptions configures a snapshot run. The zero value is usable;
// missing fields fall back to defaults.
type CaptureOptions struct {
	// SourceLabel names the captured database in the snapshot metadata.
	SourceLabel string
	// PageSize bounds rows fetched per round-trip.
	PageSize int
	// Concurrency bounds how many tables are captured at once. Each worker
	// holds one pooled connection for the duration of a single table.
	Concurrency int
	// IncludeData retains full row data, making the snapshot restore-capable.
	IncludeData bool
}

func (o CaptureOptions) withDefaults() CaptureOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// SnapshotCapturer orchestrates per-table introspection and data capture
// into an immutable Snapshot. All queries are read-only.
type SnapshotCapturer struct {
	db   *sql.DB
	opts CaptureOptions
}

func NewSnapshotCapturer(db *sql.DB, opts CaptureOptions) *SnapshotCapturer {
	return &SnapshotCapturer{db: db, opts: opts.withDefaults()}
}

// Capture introspects every user table and captures row count, checksum,
// and (optionally) row data. A baseline must be complete to serve as
// ground truth, so any per-table failure aborts the capture.
func (c *SnapshotCapturer) Capture(ctx context.Context) (*Snapshot, error) {
	schemas, err := NewSchemaIntrospector(c.db).Tables(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("capturing snapshot", "tables", len(schemas), "source", c.opts.SourceLabel)

	captured := make([]TableSnapshot, len(schemas))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.Concurrency)
	for i, schema := range schemas {
		eg.Go(func() error {
			ts, err := c.captureTable(egctx, schema)
			if err != nil {
				return err
			}
			captured[i] = ts
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		FormatVersion: FormatVersion,
		Metadata: SnapshotMetadata{
			CapturedAt:  time.Now().UTC(),
			SourceLabel: c.opts.SourceLabel,
			TableCount:  len(captured),
		},
		Tables: make(map[string]TableSnapshot, len(captured)),
	}
	for _, ts := range captured {
		snap.Metadata.TotalRowCount += ts.RowCount
		snap.Tables[ts.Name] = ts
	}
	slog.Info("snapshot captured", "tables", snap.Metadata.TableCount, "rows", snap.Metadata.TotalRowCount)
	return snap, nil
}

func (c *SnapshotCapturer) captureTable(ctx context.Context, schema TableSchema) (TableSnapshot, error) {
	slog.Debug("capturing table", "table", schema.Name)

	// A repeatable-read transaction keeps the paged fetch on one
	// consistent view of the table.
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return TableSnapshot{}, &TableQueryError{Table: schema.Name, Err: fmt.Errorf("beginning read transaction: %w", err)}
	}
	defer tx.Rollback()

	count, checksum, data, err := fetchTable(ctx, tx, schema, c.opts.PageSize, c.opts.IncludeData)
	if err != nil {
		return TableSnapshot{}, &TableQueryError{Table: schema.Name, Err: err}
	}

	slog.Debug("table captured", "table", schema.Name, "rows", count, "checksum", checksum[:12])
	return TableSnapshot{
		TableSchema: schema,
		RowCount:    count,
		Checksum:    checksum,
		Data:        data,
	}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// fetchTable reads all rows of a table in bounded pages through a
// deterministic total order, feeding each row to the checksum calculator.
// Row count is derived from the fetch itself so count and checksum always
// describe the same row set.
func fetchTable(ctx context.Context, q querier, schema TableSchema, pageSize int, includeData bool) (int64, string, [][]any, error) {
	query := selectQuery(schema)
	calc := NewChecksumCalculator(schema.Columns)

	var data [][]any
	offset := int64(0)
	for {
		n, err := fetchPage(ctx, q, query, schema, calc, pageSize, offset, includeData, &data)
		if err != nil {
			return 0, "", nil, err
		}
		offset += int64(n)
		if n < pageSize {
			break
		}
	}
	return calc.Rows(), calc.Sum(), data, nil
}

func fetchPage(ctx context.Context, q querier, query string, schema TableSchema, calc *ChecksumCalculator, pageSize int, offset int64, includeData bool, data *[][]any) (int, error) {
	rows, err := q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return 0, fmt.Errorf("fetching rows at offset %d: %w", offset, err)
	}
	defer rows.Close()

	fetched := 0
	for rows.Next() {
		values := make([]any, len(schema.Columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if err := calc.AddRow(values); err != nil {
			return 0, err
		}
		if includeData {
			*data = append(*data, portableRow(values))
		}
		fetched++
	}
	return fetched, rows.Err()
}

// selectQuery builds the paged fetch with a total order: primary-key
// columns ascending when a key exists, otherwise the full column list
// ascending, so two captures of the same content always produce the same
// physical row sequence.
func selectQuery(schema TableSchema) string {
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = quoteIdent(c.Name)
	}

	orderCols := schema.PrimaryKey
	if len(orderCols) == 0 {
		orderCols = schema.ColumnNames()
	}
	order := make([]string, len(orderCols))
	for i, c := range orderCols {
		order[i] = quoteIdent(c) + " ASC"
	}

	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT $1 OFFSET $2",
		strings.Join(cols, ", "), quoteIdent(schema.Name), strings.Join(order, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// portableRow converts scanned values into JSON-safe forms that round-trip
// through the snapshot document and back into an INSERT.
func portableRow(values []any) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = portableValue(v)
	}
	return row
}

func portableValue(v any) any {
	switch val := v.(type) {
	case nil, bool, float64, string:
		return val
	case int64:
		// JSON numbers decode as float64 and would silently corrupt
		// integers above 2^53; the server coerces the string on insert.
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.UTC().Format(canonicalTimeLayout)
	case []byte:
		if utf8.Valid(val) && !strings.ContainsRune(string(val), 0) {
			return string(val)
		}
		// PostgreSQL bytea hex input form, accepted back on insert.
		return `\x` + hex.EncodeToString(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatInt64 is shared by result details comparing counts.
func formatInt64(n int64) string { return strconv.FormatInt(n, 10) }
