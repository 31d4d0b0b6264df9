package integrity

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restorableSnapshot() *Snapshot {
	return &Snapshot{
		FormatVersion: FormatVersion,
		Tables: map[string]TableSnapshot{
			"owners": {
				TableSchema: TableSchema{
					Name: "owners",
					Columns: []ColumnDef{
						{Name: "id", Type: TypeInteger},
						{Name: "name", Type: TypeText},
					},
					PrimaryKey: []string{"id"},
				},
				RowCount: 1,
				Checksum: "aaa",
				Data:     [][]any{{int64(1), "alice"}},
			},
			"pets": {
				TableSchema: TableSchema{
					Name: "pets",
					Columns: []ColumnDef{
						{Name: "id", Type: TypeInteger},
						{Name: "owner_id", Type: TypeInteger},
					},
					PrimaryKey:  []string{"id"},
					ForeignKeys: []ForeignKey{{Column: "owner_id", RefTable: "owners", RefColumn: "id"}},
				},
				RowCount: 1,
				Checksum: "bbb",
				Data:     [][]any{{int64(10), int64(1)}},
			},
		},
	}
}

func TestDependencyOrder(t *testing.T) {
	order := dependencyOrder(restorableSnapshot())
	assert.Equal(t, []string{"owners", "pets"}, order)
}

func TestDependencyOrderChain(t *testing.T) {
	snap := &Snapshot{Tables: map[string]TableSnapshot{
		"visits": {TableSchema: TableSchema{
			Name:        "visits",
			ForeignKeys: []ForeignKey{{Column: "pet_id", RefTable: "pets", RefColumn: "id"}},
		}},
		"pets": {TableSchema: TableSchema{
			Name:        "pets",
			ForeignKeys: []ForeignKey{{Column: "owner_id", RefTable: "owners", RefColumn: "id"}},
		}},
		"owners": {TableSchema: TableSchema{Name: "owners"}},
	}}
	assert.Equal(t, []string{"owners", "pets", "visits"}, dependencyOrder(snap))
}

func TestDependencyOrderIgnoresSelfAndExternalReferences(t *testing.T) {
	snap := &Snapshot{Tables: map[string]TableSnapshot{
		"categories": {TableSchema: TableSchema{
			Name: "categories",
			ForeignKeys: []ForeignKey{
				{Column: "parent_id", RefTable: "categories", RefColumn: "id"},
				{Column: "tenant_id", RefTable: "tenants", RefColumn: "id"}, // not in snapshot
			},
		}},
	}}
	assert.Equal(t, []string{"categories"}, dependencyOrder(snap))
}

func TestDependencyOrderCycleFallsBackToNameOrder(t *testing.T) {
	snap := &Snapshot{Tables: map[string]TableSnapshot{
		"b_second": {TableSchema: TableSchema{
			Name:        "b_second",
			ForeignKeys: []ForeignKey{{Column: "x", RefTable: "a_first", RefColumn: "id"}},
		}},
		"a_first": {TableSchema: TableSchema{
			Name:        "a_first",
			ForeignKeys: []ForeignKey{{Column: "y", RefTable: "b_second", RefColumn: "id"}},
		}},
	}}
	assert.Equal(t, []string{"a_first", "b_second"}, dependencyOrder(snap))
}

func TestRestoreRejectsNonRestorableSnapshot(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	snap := restorableSnapshot()
	ts := snap.Tables["owners"]
	ts.Data = nil
	snap.Tables["owners"] = ts

	_, err = NewRestorer(db).Restore(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not restore-capable")
}

func TestRestore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Deletes run child before parent, inserts parent before child.
	mock.ExpectExec(`DELETE FROM "pets"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "owners"`).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "owners"`).WithArgs(int64(1), "alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "pets"`).WithArgs(int64(10), int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary, err := NewRestorer(db).Restore(context.Background(), restorableSnapshot())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Deleted["owners"])
	assert.Equal(t, int64(1), summary.Deleted["pets"])
	assert.Equal(t, int64(1), summary.Inserted["owners"])
	assert.Equal(t, int64(1), summary.Inserted["pets"])
	assert.Equal(t, 0, summary.Failures())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreConstraintViolationIsolatedToTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM "pets"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "owners"`).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "owners"`).WithArgs(int64(1), "alice").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "pets"`).WithArgs(int64(10), int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary, err := NewRestorer(db).Restore(context.Background(), restorableSnapshot())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failures())
	assert.Contains(t, summary.Failed["owners"], "duplicate key")
	assert.Equal(t, int64(1), summary.Inserted["pets"])
	assert.NotContains(t, summary.Inserted, "owners")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreClearFailureSkipsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM "pets"`).WillReturnError(errors.New("table is locked"))
	mock.ExpectExec(`DELETE FROM "owners"`).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "owners"`).WithArgs(int64(1), "alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary, err := NewRestorer(db).Restore(context.Background(), restorableSnapshot())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failures())
	assert.Contains(t, summary.Failed["pets"], "clear failed")
	assert.NotContains(t, summary.Inserted, "pets")
	assert.NoError(t, mock.ExpectationsWereMet())
}
