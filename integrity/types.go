package integrity

import (
	"sort"
	"time"
)

// TypeCategory is a normalized column type. Raw driver type strings vary
// across engines and driver versions; schema comparison only looks at these.
type TypeCategory string

const (
	TypeInteger TypeCategory = "integer"
	TypeNumeric TypeCategory = "numeric"
	TypeText    TypeCategory = "text"
	TypeDate    TypeCategory = "date"
	TypeBoolean TypeCategory = "boolean"
	TypeBinary  TypeCategory = "binary"
	TypeOther   TypeCategory = "other"
)

// ColumnDef describes a single column. Immutable once read.
type ColumnDef struct {
	Name      string       `json:"name"`
	Type      TypeCategory `json:"type"`
	Nullable  bool         `json:"nullable"`
	MaxLength *int64       `json:"maxLength,omitempty"`
	Default   *string      `json:"default,omitempty"`
}

// ForeignKey is one declared relation from a column of this table to a
// column of the referenced table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"refTable"`
	RefColumn string `json:"refColumn"`
}

// TableSchema is the ordered structural description of one table. Column
// order is semantically significant and part of the table fingerprint.
type TableSchema struct {
	Name        string       `json:"-"`
	Columns     []ColumnDef  `json:"columns"`
	PrimaryKey  []string     `json:"primaryKey"`
	ForeignKeys []ForeignKey `json:"foreignKeys"`
}

// ColumnNames returns the column names in schema order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the definition for name and whether it exists.
func (s TableSchema) Column(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// TableSnapshot is the captured state of one table. Data is present only in
// restore-capable snapshots and holds row tuples in the same column order as
// the schema.
type TableSnapshot struct {
	TableSchema
	RowCount int64   `json:"rowCount"`
	Checksum string  `json:"checksum"`
	Data     [][]any `json:"data,omitempty"`
}

// SnapshotMetadata describes when and where a snapshot was taken.
type SnapshotMetadata struct {
	CapturedAt    time.Time `json:"capturedAt"`
	SourceLabel   string    `json:"sourceLabel"`
	TableCount    int       `json:"tableCount"`
	TotalRowCount int64     `json:"totalRowCount"`
}

// Snapshot is an immutable point-in-time capture of a database. It never
// references its originating connection; a new capture produces a new value.
type Snapshot struct {
	FormatVersion int                      `json:"formatVersion"`
	Metadata      SnapshotMetadata         `json:"metadata"`
	Tables        map[string]TableSnapshot `json:"tables"`
}

// TableNames returns the snapshot's table names sorted ascending.
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status is the outcome of a single check. Severity orders
// Pass < Incomplete < Warn < Fail; the aggregate report status is the
// maximum severity observed, with Incomplete surfacing as Warn overall.
type Status int

const (
	StatusPass Status = iota
	StatusIncomplete
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusIncomplete:
		return "INCOMPLETE"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler so statuses serialize as
// their names in the report stream.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Category identifies the integrity dimension a result belongs to.
type Category string

const (
	CategoryExistence   Category = "existence"
	CategoryRowCount    Category = "row_count"
	CategoryChecksum    Category = "checksum"
	CategorySchema      Category = "schema"
	CategoryReferential Category = "referential_integrity"
)

// Result is the outcome of one check category for one table. Baseline and
// Current carry the two compared scalar or digest values where applicable.
type Result struct {
	Table    string   `json:"table"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Detail   string   `json:"detail"`
	Baseline string   `json:"baseline,omitempty"`
	Current  string   `json:"current,omitempty"`
}
