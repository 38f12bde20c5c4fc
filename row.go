package sqll

import "math"

// Row is a view over the current result row of a statement.
//
// A Row does not own data: text and blob accessors borrow engine memory. It
// is valid only until the next Step, Next, Reset or Close call on its
// statement. Every accessor verifies validity and fails with ErrRowStale
// afterwards, so a retained Row fails fast instead of reading another row's
// memory.
type Row struct {
	stmt *Stmt
	gen  uint64
}

func (r *Row) check() error {
	if r == nil || r.stmt == nil {
		return ErrRowStale
	}
	if err := r.stmt.check(); err != nil {
		return err
	}
	if r.gen != r.stmt.gen {
		return ErrRowStale
	}
	return nil
}

// ColumnCount returns the number of columns in the row.
func (r *Row) ColumnCount() int {
	if r.check() != nil {
		return 0
	}
	return sqlite3_column_count(r.stmt.ptr)
}

// ColumnName returns the name of a column. The first column has index 0.
func (r *Row) ColumnName(index int) string {
	if r.check() != nil {
		return ""
	}
	return sqlite3_column_name(r.stmt.ptr, index)
}

// Type returns the dynamic kind of a column. Columns past the end report
// NULL, per the engine's convention.
func (r *Row) Type(index int) Type {
	if r.check() != nil {
		return TypeNull
	}
	return sqlite3_column_type(r.stmt.ptr, index)
}

// IsNull reports whether a column holds NULL.
func (r *Row) IsNull(index int) bool {
	return r.Type(index) == TypeNull
}

// Int64 decodes an INTEGER column. It fails with a DecodeError when the
// column holds any other kind; there is no silent coercion.
func (r *Row) Int64(index int) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if t := sqlite3_column_type(r.stmt.ptr, index); t != TypeInteger {
		return 0, &DecodeError{Column: index, Want: "int64", Got: t}
	}
	return sqlite3_column_int64(r.stmt.ptr, index), nil
}

// Float64 decodes a FLOAT column. An INTEGER column widens to float64; any
// other kind fails with a DecodeError.
func (r *Row) Float64(index int) (float64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	switch t := sqlite3_column_type(r.stmt.ptr, index); t {
	case TypeFloat:
		return sqlite3_column_double(r.stmt.ptr, index), nil
	case TypeInteger:
		return float64(sqlite3_column_int64(r.stmt.ptr, index)), nil
	default:
		return 0, &DecodeError{Column: index, Want: "float64", Got: t}
	}
}

// RawText returns a borrowed view of a TEXT column. The bytes alias engine
// memory and are valid only within the row's validity window; copy them to
// retain.
func (r *Row) RawText(index int) ([]byte, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if t := sqlite3_column_type(r.stmt.ptr, index); t != TypeText {
		return nil, &DecodeError{Column: index, Want: "text", Got: t}
	}
	return sqlite3_column_text(r.stmt.ptr, index), nil
}

// Text decodes a TEXT column into an owned string.
func (r *Row) Text(index int) (string, error) {
	raw, err := r.RawText(index)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// RawBytes returns a borrowed view of a BLOB column, with the same validity
// window as RawText.
func (r *Row) RawBytes(index int) ([]byte, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if t := sqlite3_column_type(r.stmt.ptr, index); t != TypeBlob {
		return nil, &DecodeError{Column: index, Want: "blob", Got: t}
	}
	return sqlite3_column_blob(r.stmt.ptr, index), nil
}

// Bytes decodes a BLOB column into an owned copy.
func (r *Row) Bytes(index int) ([]byte, error) {
	raw, err := r.RawBytes(index)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Value decodes any column into an owned Value.
func (r *Row) Value(index int) (Value, error) {
	if err := r.check(); err != nil {
		return Value{}, err
	}
	switch t := sqlite3_column_type(r.stmt.ptr, index); t {
	case TypeInteger:
		return IntegerValue(sqlite3_column_int64(r.stmt.ptr, index)), nil
	case TypeFloat:
		return FloatValue(sqlite3_column_double(r.stmt.ptr, index)), nil
	case TypeText:
		return TextValue(string(sqlite3_column_text(r.stmt.ptr, index))), nil
	case TypeBlob:
		b := sqlite3_column_blob(r.stmt.ptr, index)
		out := make([]byte, len(b))
		copy(out, b)
		return BlobValue(out), nil
	default:
		return NullValue(), nil
	}
}

// ColumnDecoder is implemented by destination types that can decode
// themselves from a column, extending Scan beyond the built-in scalar
// types.
type ColumnDecoder interface {
	DecodeColumn(r *Row, index int) error
}

// Scan decodes every column of the row into dest in order. The number of
// destinations must equal the column count; a mismatch fails with a
// DecodeError before anything is decoded.
//
// Built-in destinations are pointers to Go integer types (range checked
// against the column's 64-bit value), float32/float64, bool, string,
// []byte and Value. A pointer to pointer destination decodes NULL as nil
// instead of failing. Any destination implementing ColumnDecoder decodes
// itself.
func (r *Row) Scan(dest ...any) error {
	if err := r.check(); err != nil {
		return err
	}
	n := sqlite3_column_count(r.stmt.ptr)
	if len(dest) != n {
		return &DecodeError{Column: -1, Reason: "destination count does not match column count"}
	}
	for i, d := range dest {
		if err := r.scanColumn(i, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Row) scanColumn(index int, dest any) error {
	if d, ok := dest.(ColumnDecoder); ok {
		return d.DecodeColumn(r, index)
	}

	switch d := dest.(type) {
	case *int64:
		v, err := r.Int64(index)
		if err != nil {
			return err
		}
		*d = v
	case *int:
		return r.scanNarrowInt(index, math.MinInt, math.MaxInt, "int", func(v int64) { *d = int(v) })
	case *int32:
		return r.scanNarrowInt(index, math.MinInt32, math.MaxInt32, "int32", func(v int64) { *d = int32(v) })
	case *int16:
		return r.scanNarrowInt(index, math.MinInt16, math.MaxInt16, "int16", func(v int64) { *d = int16(v) })
	case *int8:
		return r.scanNarrowInt(index, math.MinInt8, math.MaxInt8, "int8", func(v int64) { *d = int8(v) })
	case *uint64:
		return r.scanNarrowInt(index, 0, math.MaxInt64, "uint64", func(v int64) { *d = uint64(v) })
	case *uint32:
		return r.scanNarrowInt(index, 0, math.MaxUint32, "uint32", func(v int64) { *d = uint32(v) })
	case *uint16:
		return r.scanNarrowInt(index, 0, math.MaxUint16, "uint16", func(v int64) { *d = uint16(v) })
	case *uint8:
		return r.scanNarrowInt(index, 0, math.MaxUint8, "uint8", func(v int64) { *d = uint8(v) })
	case *uint:
		return r.scanNarrowInt(index, 0, math.MaxInt64, "uint", func(v int64) { *d = uint(v) })
	case *float64:
		v, err := r.Float64(index)
		if err != nil {
			return err
		}
		*d = v
	case *float32:
		v, err := r.Float64(index)
		if err != nil {
			return err
		}
		if !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32 {
			return &DecodeError{Column: index, Want: "float32", Got: TypeFloat, Reason: "value overflows float32"}
		}
		*d = float32(v)
	case *bool:
		v, err := r.Int64(index)
		if err != nil {
			return err
		}
		*d = v != 0
	case *string:
		v, err := r.Text(index)
		if err != nil {
			return err
		}
		*d = v
	case *[]byte:
		v, err := r.Bytes(index)
		if err != nil {
			return err
		}
		*d = v
	case *Value:
		v, err := r.Value(index)
		if err != nil {
			return err
		}
		*d = v
	case **int64:
		return scanNullable(r, index, d)
	case **int:
		return scanNullable(r, index, d)
	case **float64:
		return scanNullable(r, index, d)
	case **string:
		return scanNullable(r, index, d)
	case **[]byte:
		return scanNullable(r, index, d)
	case **bool:
		return scanNullable(r, index, d)
	default:
		return &DecodeError{Column: index, Want: "supported destination", Got: r.Type(index), Reason: "unsupported destination type"}
	}
	return nil
}

// scanNarrowInt decodes an INTEGER column into a narrower integer shape,
// failing rather than wrapping when the value is out of range.
func (r *Row) scanNarrowInt(index int, lo, hi int64, want string, set func(int64)) error {
	v, err := r.Int64(index)
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.Want = want
		}
		return err
	}
	if v < lo || v > hi {
		return &DecodeError{Column: index, Want: want, Got: TypeInteger, Reason: "value out of range"}
	}
	set(v)
	return nil
}

// scanNullable decodes a column into **T, mapping NULL to nil.
func scanNullable[T any](r *Row, index int, dest **T) error {
	if r.IsNull(index) {
		*dest = nil
		return nil
	}
	var v T
	if err := r.scanColumn(index, &v); err != nil {
		return err
	}
	*dest = &v
	return nil
}
