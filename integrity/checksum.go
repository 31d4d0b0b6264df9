package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"time"
)

// EmptyChecksum is the digest of a zero-row table: SHA-256 over zero bytes.
// Declared as a constant so "empty at both ends" compares equal without
// either side hashing anything.
const EmptyChecksum = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// nullSentinel marks SQL NULL in the canonical encoding. PostgreSQL text
// values cannot contain NUL bytes, so it cannot collide with real data.
const nullSentinel = "\x00NULL\x00"

// canonicalTimeLayout renders timestamps in UTC at microsecond precision,
// matching what PostgreSQL stores.
const canonicalTimeLayout = "2006-01-02T15:04:05.000000Z"

// ChecksumCalculator accumulates rows in canonical form and produces a
// table digest. Rows must be added in the capturer's total order; the
// digest then depends only on the table's logical content, never on
// retrieval order, connection, or driver.
type ChecksumCalculator struct {
	columns []ColumnDef
	digest  hash.Hash
	rows    int64
}

// NewChecksumCalculator creates a calculator for a table with the given
// schema. The column order is the table's schema order and is part of what
// the checksum fingerprints.
func NewChecksumCalculator(columns []ColumnDef) *ChecksumCalculator {
	return &ChecksumCalculator{
		columns: columns,
		digest:  sha256.New(),
	}
}

// AddRow appends one row to the digest. Values must follow the schema's
// column order.
func (c *ChecksumCalculator) AddRow(values []any) error {
	if len(values) != len(c.columns) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(values), len(c.columns))
	}
	for i, col := range c.columns {
		v, err := CanonicalValue(col, values[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		// Length-prefixed fields make boundaries unambiguous: ("ab","c")
		// and ("a","bc") hash differently.
		writeField(c.digest, col.Name)
		writeField(c.digest, v)
	}
	c.digest.Write([]byte{'\n'})
	c.rows++
	return nil
}

// Rows returns the number of rows added so far.
func (c *ChecksumCalculator) Rows() int64 { return c.rows }

// Sum returns the table checksum as a hex digest.
func (c *ChecksumCalculator) Sum() string {
	if c.rows == 0 {
		return EmptyChecksum
	}
	return hex.EncodeToString(c.digest.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	h.Write([]byte(strconv.Itoa(len(s))))
	h.Write([]byte{':'})
	h.Write([]byte(s))
}

// CanonicalValue stringifies a scanned database value with fixed,
// type-aware rules so logically identical content always yields identical
// bytes:
//
//   - NULL becomes a NUL-framed sentinel that no valid string equals
//   - timestamps render as ISO-8601 UTC at microsecond precision
//   - floats render with 13 significant digits in exponent form
//   - bytes in numeric columns use the float form, bytes in binary
//     columns render as 0x-prefixed hex, bytes in any other column are
//     taken verbatim
//
// The column's declared category decides how raw bytes are read, never the
// shape of the bytes: text like "0123" must stay distinct from "123".
func CanonicalValue(col ColumnDef, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return nullSentinel, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'e', 12, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'e', 12, 64), nil
	case time.Time:
		return val.UTC().Format(canonicalTimeLayout), nil
	case string:
		return val, nil
	case []byte:
		switch col.Type {
		case TypeNumeric:
			// lib/pq hands numeric/decimal values over as []byte.
			// Normalize to the fixed float rendering so they compare
			// equal to float64 scans of the same value.
			if f, err := strconv.ParseFloat(string(val), 64); err == nil {
				return strconv.FormatFloat(f, 'e', 12, 64), nil
			}
			return string(val), nil
		case TypeBinary:
			return "0x" + hex.EncodeToString(val), nil
		default:
			return string(val), nil
		}
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
