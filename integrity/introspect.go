package integrity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// SchemaIntrospector reads live database metadata into typed schema
// descriptors. All queries are read-only.
type SchemaIntrospector struct {
	db *sql.DB
}

func NewSchemaIntrospector(db *sql.DB) *SchemaIntrospector {
	return &SchemaIntrospector{db: db}
}

// Tables returns the ordered set of schemas for all user tables. System
// catalogs are excluded by the information_schema filter. A database with
// zero user tables yields an empty result, not an error; a failing
// metadata query yields a ConnectionError.
func (s *SchemaIntrospector) Tables(ctx context.Context) ([]TableSchema, error) {
	names, err := s.tableNames(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("listing tables: %w", err)}
	}
	slog.Debug("found user tables", "count", len(names))

	schemas := make([]TableSchema, 0, len(names))
	for _, name := range names {
		schema, err := s.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

// Table reads the schema descriptor for a single table.
func (s *SchemaIntrospector) Table(ctx context.Context, name string) (TableSchema, error) {
	columns, err := s.columns(ctx, name)
	if err != nil {
		return TableSchema{}, &TableQueryError{Table: name, Err: fmt.Errorf("reading columns: %w", err)}
	}
	pk, err := s.primaryKey(ctx, name)
	if err != nil {
		return TableSchema{}, &TableQueryError{Table: name, Err: fmt.Errorf("reading primary key: %w", err)}
	}
	fks, err := s.foreignKeys(ctx, name)
	if err != nil {
		return TableSchema{}, &TableQueryError{Table: name, Err: fmt.Errorf("reading foreign keys: %w", err)}
	}
	return TableSchema{
		Name:        name,
		Columns:     columns,
		PrimaryKey:  pk,
		ForeignKeys: fks,
	}, nil
}

func (s *SchemaIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *SchemaIntrospector) columns(ctx context.Context, table string) ([]ColumnDef, error) {
	query := `
		SELECT
			column_name,
			data_type,
			is_nullable = 'YES' AS is_nullable,
			character_maximum_length,
			column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []ColumnDef
	for rows.Next() {
		var (
			col       ColumnDef
			dataType  string
			maxLength sql.NullInt64
			deflt     sql.NullString
		)
		if err := rows.Scan(&col.Name, &dataType, &col.Nullable, &maxLength, &deflt); err != nil {
			return nil, err
		}
		col.Type = NormalizeType(dataType)
		if maxLength.Valid {
			col.MaxLength = &maxLength.Int64
		}
		if deflt.Valid {
			col.Default = &deflt.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (s *SchemaIntrospector) primaryKey(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = 'public'
			AND tc.table_name = $1
		ORDER BY kcu.ordinal_position
	`

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		pk = append(pk, col)
	}
	return pk, rows.Err()
}

// foreignKeys returns the declared relations, one entry per referencing
// column. A composite foreign key therefore surfaces as several
// single-column relations and its orphan check inspects each column
// independently, which can over-report when only the column combination
// is constrained.
func (s *SchemaIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	query := `
		SELECT
			kcu.column_name,
			ccu.table_name AS ref_table,
			ccu.column_name AS ref_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = 'public'
			AND tc.table_name = $1
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// NormalizeType maps a raw information_schema data type to its category so
// schema comparison stays stable across engines and driver versions.
func NormalizeType(dataType string) TypeCategory {
	switch t := strings.ToLower(strings.TrimSpace(dataType)); t {
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8", "smallserial", "serial", "bigserial":
		return TypeInteger
	case "numeric", "decimal", "real", "double precision", "money", "float4", "float8":
		return TypeNumeric
	case "boolean", "bool":
		return TypeBoolean
	case "bytea":
		return TypeBinary
	case "date", "interval":
		return TypeDate
	case "character varying", "varchar", "character", "char", "bpchar", "text", "uuid", "json", "jsonb", "xml", "citext":
		return TypeText
	default:
		if strings.HasPrefix(t, "timestamp") || strings.HasPrefix(t, "time") {
			return TypeDate
		}
		return TypeOther
	}
}
