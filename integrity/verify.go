package integrity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// VerifyOptions configures a verification run.
type VerifyOptions struct {
	PageSize    int
	Concurrency int
	// StrictChecksum escalates a checksum mismatch with identical row
	// count from Warn to Fail. Off by default: legitimate re-keying can
	// change a checksum without indicating loss.
	StrictChecksum bool
}

func (o VerifyOptions) withDefaults() VerifyOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Verifier re-derives live-database facts and compares them against a
// baseline snapshot, producing per-table, per-category results. It never
// mutates the baseline or the live database.
type Verifier struct {
	db    *sql.DB
	intro *SchemaIntrospector
	opts  VerifyOptions
}

func NewVerifier(db *sql.DB, opts VerifyOptions) *Verifier {
	return &Verifier{
		db:    db,
		intro: NewSchemaIntrospector(db),
		opts:  opts.withDefaults(),
	}
}

// Verify checks every baseline table against the live database. Tables are
// independent: a failure in one never blocks the others, and a run timeout
// leaves already-produced results intact while marking unprocessed tables
// Incomplete. Only a connection-level failure aborts the whole run.
func (v *Verifier) Verify(ctx context.Context, baseline *Snapshot) ([]Result, error) {
	liveNames, err := v.intro.tableNames(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("listing tables: %w", err)}
	}
	live := make(map[string]bool, len(liveNames))
	for _, name := range liveNames {
		live[name] = true
	}

	baseNames := baseline.TableNames()
	slog.Info("verifying against baseline", "baselineTables", len(baseNames), "liveTables", len(liveNames))

	var results []Result

	// Live tables absent from the baseline are informational: possibly
	// intentional schema evolution, never data loss.
	for _, name := range liveNames {
		if _, ok := baseline.Tables[name]; !ok {
			results = append(results, Result{
				Table:    name,
				Category: CategoryExistence,
				Status:   StatusWarn,
				Detail:   "table not present in baseline",
			})
		}
	}

	perTable := make([][]Result, len(baseNames))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(v.opts.Concurrency)
	for i, name := range baseNames {
		eg.Go(func() error {
			if egctx.Err() != nil {
				perTable[i] = []Result{{
					Table:    name,
					Category: CategoryExistence,
					Status:   StatusIncomplete,
					Detail:   "not checked: run deadline reached",
				}}
				return nil
			}
			perTable[i] = v.verifyTable(egctx, baseline.Tables[name], live[name])
			return nil
		})
	}
	// Workers never return errors; per-table failures become results.
	_ = eg.Wait()

	for _, rs := range perTable {
		results = append(results, rs...)
	}
	return results, nil
}

// verifyTable runs the per-table stage sequence Existence -> RowCount ->
// Checksum -> Schema -> ReferentialIntegrity. A negative outcome at one
// stage does not stop later stages; only the inability to query the table
// at all cuts the sequence short.
func (v *Verifier) verifyTable(ctx context.Context, base TableSnapshot, liveExists bool) []Result {
	name := base.Name

	if !liveExists {
		return []Result{{
			Table:    name,
			Category: CategoryExistence,
			Status:   StatusFail,
			Detail:   "table missing from live database",
		}}
	}

	results := []Result{{
		Table:    name,
		Category: CategoryExistence,
		Status:   StatusPass,
		Detail:   "table present",
	}}

	liveSchema, err := v.intro.Table(ctx, name)
	if err != nil {
		results = append(results, queryFailure(ctx, err, name, CategorySchema,
			fmt.Sprintf("could not introspect table: %v", err)))
		return results
	}

	tx, err := v.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		results = append(results, queryFailure(ctx, err, name, CategoryRowCount,
			fmt.Sprintf("could not read table: %v", err)))
		results = append(results, compareSchemas(name, base.TableSchema, liveSchema))
		return results
	}
	defer tx.Rollback()

	liveCount, liveChecksum, _, err := fetchTable(ctx, tx, liveSchema, v.opts.PageSize, false)
	if err != nil {
		results = append(results, queryFailure(ctx, err, name, CategoryRowCount,
			fmt.Sprintf("could not fetch rows: %v", err)))
	} else {
		results = append(results, compareRowCounts(name, base.RowCount, liveCount))
		results = append(results, v.compareChecksums(name, base, liveCount, liveChecksum))
	}

	results = append(results, compareSchemas(name, base.TableSchema, liveSchema))
	results = append(results, v.checkReferentialIntegrity(ctx, tx, liveSchema))
	return results
}

// queryFailure turns a failed per-table query into a result. The run
// deadline firing mid-table is not a table defect: it surfaces as
// Incomplete, exactly like a table the run never reached.
func queryFailure(ctx context.Context, err error, table string, category Category, detail string) Result {
	r := Result{
		Table:    table,
		Category: category,
		Status:   StatusFail,
		Detail:   detail,
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		r.Status = StatusIncomplete
		r.Detail = "not checked: run deadline reached"
	}
	return r
}

func compareRowCounts(table string, base, live int64) Result {
	r := Result{
		Table:    table,
		Category: CategoryRowCount,
		Baseline: formatInt64(base),
		Current:  formatInt64(live),
	}
	switch {
	case live == base:
		r.Status = StatusPass
		r.Detail = fmt.Sprintf("%d rows (unchanged)", base)
	case live < base:
		r.Status = StatusFail
		r.Detail = fmt.Sprintf("%d -> %d rows: possible data loss", base, live)
	default:
		r.Status = StatusWarn
		r.Detail = fmt.Sprintf("%d -> %d rows: growth needs justification", base, live)
	}
	return r
}

// compareChecksums decides whether content, not row count, changed. When
// counts already differ a digest mismatch is expected and stays folded
// into the row-count verdict as a Warn here.
func (v *Verifier) compareChecksums(table string, base TableSnapshot, liveCount int64, liveChecksum string) Result {
	r := Result{
		Table:    table,
		Category: CategoryChecksum,
		Baseline: base.Checksum,
		Current:  liveChecksum,
	}
	switch {
	case liveChecksum == base.Checksum:
		r.Status = StatusPass
		r.Detail = "content unchanged"
	case liveCount != base.RowCount:
		r.Status = StatusWarn
		r.Detail = "content changed together with row count"
	case v.opts.StrictChecksum:
		r.Status = StatusFail
		r.Detail = "same row count but different content (strict checksum)"
	default:
		r.Status = StatusWarn
		r.Detail = "same row count but different content"
	}
	return r
}

func compareSchemas(table string, base, live TableSchema) Result {
	r := Result{
		Table:    table,
		Category: CategorySchema,
		Status:   StatusPass,
		Detail:   "schema unchanged",
	}

	var failures, warnings []string

	for _, bc := range base.Columns {
		lc, ok := live.Column(bc.Name)
		if !ok {
			failures = append(failures, fmt.Sprintf("column %s removed", bc.Name))
			continue
		}
		if lc.Type != bc.Type {
			failures = append(failures, fmt.Sprintf("column %s type changed %s -> %s", bc.Name, bc.Type, lc.Type))
		}
		if lc.Nullable != bc.Nullable {
			warnings = append(warnings, fmt.Sprintf("column %s nullability changed", bc.Name))
		}
		if !equalInt64Ptr(bc.MaxLength, lc.MaxLength) {
			warnings = append(warnings, fmt.Sprintf("column %s max length changed", bc.Name))
		}
		if !equalStringPtr(bc.Default, lc.Default) {
			warnings = append(warnings, fmt.Sprintf("column %s default changed", bc.Name))
		}
	}
	for _, lc := range live.Columns {
		if _, ok := base.Column(lc.Name); !ok {
			warnings = append(warnings, fmt.Sprintf("column %s added", lc.Name))
		}
	}
	if len(failures) == 0 && columnOrderChanged(base, live) {
		warnings = append(warnings, "column order changed")
	}

	switch {
	case len(failures) > 0:
		r.Status = StatusFail
		r.Detail = strings.Join(append(failures, warnings...), "; ")
	case len(warnings) > 0:
		r.Status = StatusWarn
		r.Detail = strings.Join(warnings, "; ")
	}
	return r
}

// columnOrderChanged compares the relative order of columns present on
// both sides, skipping additions and removals (reported separately).
func columnOrderChanged(base, live TableSchema) bool {
	bi, li := 0, 0
	for bi < len(base.Columns) && li < len(live.Columns) {
		if _, ok := live.Column(base.Columns[bi].Name); !ok {
			bi++
			continue
		}
		if _, ok := base.Column(live.Columns[li].Name); !ok {
			li++
			continue
		}
		if base.Columns[bi].Name != live.Columns[li].Name {
			return true
		}
		bi++
		li++
	}
	return false
}

// checkReferentialIntegrity anti-joins every declared relation of the live
// table, counting child rows whose FK value has no matching parent. Any
// orphan is critical regardless of the other category outcomes.
func (v *Verifier) checkReferentialIntegrity(ctx context.Context, tx querier, schema TableSchema) Result {
	r := Result{
		Table:    schema.Name,
		Category: CategoryReferential,
	}
	if len(schema.ForeignKeys) == 0 {
		r.Status = StatusPass
		r.Detail = "no foreign keys declared"
		return r
	}

	var orphaned []string
	for _, fk := range schema.ForeignKeys {
		count, err := countOrphans(ctx, tx, schema.Name, fk)
		if err != nil {
			return queryFailure(ctx, err, schema.Name, CategoryReferential,
				fmt.Sprintf("orphan check %s -> %s.%s failed: %v", fk.Column, fk.RefTable, fk.RefColumn, err))
		}
		if count > 0 {
			orphaned = append(orphaned, fmt.Sprintf("%d orphaned rows via %s -> %s.%s", count, fk.Column, fk.RefTable, fk.RefColumn))
		}
	}

	if len(orphaned) > 0 {
		r.Status = StatusFail
		r.Detail = strings.Join(orphaned, "; ")
		return r
	}
	r.Status = StatusPass
	r.Detail = fmt.Sprintf("%d foreign keys intact", len(schema.ForeignKeys))
	return r
}

func countOrphans(ctx context.Context, q querier, table string, fk ForeignKey) (int64, error) {
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE c.%s IS NOT NULL AND p.%s IS NULL",
		quoteIdent(table), quoteIdent(fk.RefTable),
		quoteIdent(fk.Column), quoteIdent(fk.RefColumn),
		quoteIdent(fk.Column), quoteIdent(fk.RefColumn),
	)

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SortResults orders results deterministically: table name ascending, then
// check stage order.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Table != results[j].Table {
			return results[i].Table < results[j].Table
		}
		return categoryRank(results[i].Category) < categoryRank(results[j].Category)
	})
}

func categoryRank(c Category) int {
	switch c {
	case CategoryExistence:
		return 0
	case CategoryRowCount:
		return 1
	case CategoryChecksum:
		return 2
	case CategorySchema:
		return 3
	case CategoryReferential:
		return 4
	}
	return 5
}
