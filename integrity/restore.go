package integrity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// RestoreSummary reports what a restore run changed.
type RestoreSummary struct {
	Deleted  map[string]int64  `json:"deleted"`
	Inserted map[string]int64  `json:"inserted"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// Failures reports how many tables could not be restored.
func (s *RestoreSummary) Failures() int { return len(s.Failed) }

// Restorer loads a restore-capable snapshot into a live database. This is
// the only writing path in the system; deletions proceed child-before-
// parent and insertions parent-before-child regardless of anything else.
type Restorer struct {
	db *sql.DB
}

func NewRestorer(db *sql.DB) *Restorer {
	return &Restorer{db: db}
}

// Restore clears the snapshot's tables and reloads their captured rows. A
// constraint violation aborts the restore of the affected table only; the
// run continues with the next table in dependency order.
func (r *Restorer) Restore(ctx context.Context, snap *Snapshot) (*RestoreSummary, error) {
	for name, ts := range snap.Tables {
		if ts.RowCount > 0 && len(ts.Data) == 0 {
			return nil, fmt.Errorf("snapshot is not restore-capable: table %s has no row data", name)
		}
	}

	insertOrder := dependencyOrder(snap)
	deleteOrder := make([]string, len(insertOrder))
	for i, name := range insertOrder {
		deleteOrder[len(insertOrder)-1-i] = name
	}

	summary := &RestoreSummary{
		Deleted:  make(map[string]int64),
		Inserted: make(map[string]int64),
		Failed:   make(map[string]string),
	}

	slog.Info("clearing tables", "count", len(deleteOrder))
	for _, name := range deleteOrder {
		res, err := r.db.ExecContext(ctx, "DELETE FROM "+quoteIdent(name))
		if err != nil {
			slog.Warn("could not clear table", "table", name, "error", err)
			summary.Failed[name] = fmt.Sprintf("clear failed: %v", err)
			continue
		}
		n, _ := res.RowsAffected()
		summary.Deleted[name] = n
	}

	slog.Info("restoring rows", "count", len(insertOrder))
	for _, name := range insertOrder {
		if _, failed := summary.Failed[name]; failed {
			continue
		}
		ts := snap.Tables[name]
		if len(ts.Data) == 0 {
			continue
		}
		n, err := r.restoreTable(ctx, ts)
		if err != nil {
			slog.Warn("could not restore table", "table", name, "error", err)
			summary.Failed[name] = err.Error()
			continue
		}
		summary.Inserted[name] = n
		slog.Debug("table restored", "table", name, "rows", n)
	}
	return summary, nil
}

// restoreTable inserts all captured rows in one transaction so a
// constraint violation leaves the table empty rather than half-loaded.
func (r *Restorer) restoreTable(ctx context.Context, ts TableSnapshot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cols := make([]string, len(ts.Columns))
	params := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = quoteIdent(c.Name)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(ts.Name), strings.Join(cols, ", "), strings.Join(params, ", "))

	var inserted int64
	for _, row := range ts.Data {
		if len(row) != len(ts.Columns) {
			return 0, fmt.Errorf("row has %d values, schema has %d columns", len(row), len(ts.Columns))
		}
		if _, err := tx.ExecContext(ctx, query, row...); err != nil {
			return 0, fmt.Errorf("inserting row %d: %w", inserted+1, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return inserted, nil
}

// dependencyOrder topologically sorts the snapshot's tables so every
// parent precedes its children, using the declared foreign keys.
// Self-references and relations to tables outside the snapshot are
// ignored; a cycle falls back to name order for the remainder.
func dependencyOrder(snap *Snapshot) []string {
	names := snap.TableNames()

	parents := make(map[string]map[string]bool, len(names))
	for _, name := range names {
		parents[name] = make(map[string]bool)
		for _, fk := range snap.Tables[name].ForeignKeys {
			if fk.RefTable == name {
				continue
			}
			if _, ok := snap.Tables[fk.RefTable]; ok {
				parents[name][fk.RefTable] = true
			}
		}
	}

	var order []string
	placed := make(map[string]bool, len(names))
	remaining := append([]string(nil), names...)
	for len(remaining) > 0 {
		progressed := false
		var next []string
		for _, name := range remaining {
			ready := true
			for parent := range parents[name] {
				if !placed[parent] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, name)
				placed[name] = true
				progressed = true
			} else {
				next = append(next, name)
			}
		}
		if !progressed {
			slog.Warn("foreign key cycle detected, falling back to name order", "tables", next)
			sort.Strings(next)
			order = append(order, next...)
			break
		}
		remaining = next
	}
	return order
}
