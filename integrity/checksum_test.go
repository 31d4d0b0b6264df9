package integrity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textColumns(names ...string) []ColumnDef {
	cols := make([]ColumnDef, len(names))
	for i, n := range names {
		cols[i] = ColumnDef{Name: n, Type: TypeText}
	}
	return cols
}

func TestChecksumDeterministic(t *testing.T) {
	cols := textColumns("id", "name")
	rows := [][]any{
		{int64(1), "alice"},
		{int64(2), "bob"},
	}

	first := NewChecksumCalculator(cols)
	second := NewChecksumCalculator(cols)
	for _, row := range rows {
		require.NoError(t, first.AddRow(row))
		require.NoError(t, second.AddRow(row))
	}

	assert.Equal(t, first.Sum(), second.Sum())
	assert.Equal(t, int64(2), first.Rows())
}

func TestChecksumDependsOnRowOrder(t *testing.T) {
	cols := textColumns("id")

	forward := NewChecksumCalculator(cols)
	require.NoError(t, forward.AddRow([]any{int64(1)}))
	require.NoError(t, forward.AddRow([]any{int64(2)}))

	reversed := NewChecksumCalculator(cols)
	require.NoError(t, reversed.AddRow([]any{int64(2)}))
	require.NoError(t, reversed.AddRow([]any{int64(1)}))

	assert.NotEqual(t, forward.Sum(), reversed.Sum())
}

func TestChecksumEmptyTable(t *testing.T) {
	calc := NewChecksumCalculator(textColumns("id", "name"))
	assert.Equal(t, EmptyChecksum, calc.Sum())
	assert.Equal(t, int64(0), calc.Rows())

	// The constant holds for any schema: zero rows hash to zero bytes.
	other := NewChecksumCalculator(textColumns("completely", "different", "columns"))
	assert.Equal(t, calc.Sum(), other.Sum())
}

func TestChecksumNullDistinctFromEmptyString(t *testing.T) {
	cols := textColumns("value")

	withNull := NewChecksumCalculator(cols)
	require.NoError(t, withNull.AddRow([]any{nil}))

	withEmpty := NewChecksumCalculator(cols)
	require.NoError(t, withEmpty.AddRow([]any{""}))

	assert.NotEqual(t, withNull.Sum(), withEmpty.Sum())
}

func TestChecksumFieldBoundariesUnambiguous(t *testing.T) {
	cols := textColumns("a", "b")

	left := NewChecksumCalculator(cols)
	require.NoError(t, left.AddRow([]any{"ab", "c"}))

	right := NewChecksumCalculator(cols)
	require.NoError(t, right.AddRow([]any{"a", "bc"}))

	assert.NotEqual(t, left.Sum(), right.Sum())
}

func TestChecksumIncludesColumnNames(t *testing.T) {
	first := NewChecksumCalculator(textColumns("email"))
	require.NoError(t, first.AddRow([]any{"x@example.com"}))

	second := NewChecksumCalculator(textColumns("username"))
	require.NoError(t, second.AddRow([]any{"x@example.com"}))

	assert.NotEqual(t, first.Sum(), second.Sum())
}

func TestAddRowArityMismatch(t *testing.T) {
	calc := NewChecksumCalculator(textColumns("id", "name"))
	err := calc.AddRow([]any{int64(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema has 2 columns")
}

func TestCanonicalValue(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	textCol := ColumnDef{Name: "v", Type: TypeText}
	numCol := ColumnDef{Name: "v", Type: TypeNumeric}
	intCol := ColumnDef{Name: "v", Type: TypeInteger}
	boolCol := ColumnDef{Name: "v", Type: TypeBoolean}
	dateCol := ColumnDef{Name: "v", Type: TypeDate}
	binCol := ColumnDef{Name: "v", Type: TypeBinary}

	tests := []struct {
		name  string
		col   ColumnDef
		value any
		want  string
	}{
		{"null", textCol, nil, "\x00NULL\x00"},
		{"bool true", boolCol, true, "true"},
		{"bool false", boolCol, false, "false"},
		{"int64", intCol, int64(42), "42"},
		{"int", intCol, 7, "7"},
		{"float64", numCol, 2.5, "2.500000000000e+00"},
		{"float32", numCol, float32(0.5), "5.000000000000e-01"},
		{"string", textCol, "hello", "hello"},
		{"time utc", dateCol, time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC), "2024-03-01T12:00:00.123456Z"},
		{"time converts to utc", dateCol, time.Date(2024, 3, 1, 13, 0, 0, 0, paris), "2024-03-01T12:00:00.000000Z"},
		{"numeric wire bytes", numCol, []byte("123.45"), "1.234500000000e+02"},
		{"binary bytes", binCol, []byte{0xde, 0xad}, "0xdead"},
		{"numeric-looking text bytes stay verbatim", textCol, []byte("0123"), "0123"},
		{"exponent text bytes stay verbatim", textCol, []byte("1.23e2"), "1.23e2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalValue(tt.col, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalValueUnsupportedType(t *testing.T) {
	_, err := CanonicalValue(ColumnDef{Name: "v", Type: TypeOther}, struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported value type")
}

func TestCanonicalValueNumericFormsAgree(t *testing.T) {
	// numeric columns may arrive as float64 or as []byte depending on the
	// driver; both renderings must coincide.
	numCol := ColumnDef{Name: "v", Type: TypeNumeric}
	asFloat, err := CanonicalValue(numCol, 123.45)
	require.NoError(t, err)
	asBytes, err := CanonicalValue(numCol, []byte("123.45"))
	require.NoError(t, err)
	assert.Equal(t, asFloat, asBytes)
}

func TestChecksumDistinguishesNumericLookingText(t *testing.T) {
	cols := textColumns("code")
	pairs := [][2]string{
		{"123", "0123"},
		{"123", "1.23e2"},
		{"123", "+123"},
	}
	for _, pair := range pairs {
		a := NewChecksumCalculator(cols)
		require.NoError(t, a.AddRow([]any{[]byte(pair[0])}))
		b := NewChecksumCalculator(cols)
		require.NoError(t, b.AddRow([]any{[]byte(pair[1])}))
		assert.NotEqual(t, a.Sum(), b.Sum(), "%q vs %q must not collide", pair[0], pair[1])
	}
}
