package sqll

import "fmt"

// Type is the dynamic kind of a column value.
type Type int32

const (
	TypeInteger Type = 1
	TypeFloat   Type = 2
	TypeText    Type = 3
	TypeBlob    Type = 4
	TypeNull    Type = 5
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	case TypeNull:
		return "NULL"
	default:
		return fmt.Sprintf("TYPE(%d)", int32(t))
	}
}

// Null is a marker value that binds as SQL NULL.
type Null struct{}

// Value is an owned dynamically typed value mirroring the engine's column
// typing. It is usable both as a bind parameter and as a decode target.
type Value struct {
	typ     Type
	integer int64
	float   float64
	text    string
	blob    []byte
}

// NullValue returns the NULL value.
func NullValue() Value {
	return Value{typ: TypeNull}
}

// IntegerValue returns an INTEGER value.
func IntegerValue(v int64) Value {
	return Value{typ: TypeInteger, integer: v}
}

// FloatValue returns a FLOAT value.
func FloatValue(v float64) Value {
	return Value{typ: TypeFloat, float: v}
}

// TextValue returns a TEXT value.
func TextValue(v string) Value {
	return Value{typ: TypeText, text: v}
}

// BlobValue returns a BLOB value. The slice is retained, not copied.
func BlobValue(v []byte) Value {
	return Value{typ: TypeBlob, blob: v}
}

// Type returns the dynamic kind of the value. The zero Value is NULL.
func (v Value) Type() Type {
	if v.typ == 0 {
		return TypeNull
	}
	return v.typ
}

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool {
	return v.Type() == TypeNull
}

// Integer returns the integer payload and whether the value is an INTEGER.
func (v Value) Integer() (int64, bool) {
	return v.integer, v.typ == TypeInteger
}

// Float returns the float payload and whether the value is a FLOAT.
func (v Value) Float() (float64, bool) {
	return v.float, v.typ == TypeFloat
}

// Text returns the text payload and whether the value is TEXT.
func (v Value) Text() (string, bool) {
	return v.text, v.typ == TypeText
}

// Blob returns the blob payload and whether the value is a BLOB.
func (v Value) Blob() ([]byte, bool) {
	return v.blob, v.typ == TypeBlob
}

func (v Value) String() string {
	switch v.Type() {
	case TypeInteger:
		return fmt.Sprintf("Integer(%d)", v.integer)
	case TypeFloat:
		return fmt.Sprintf("Float(%v)", v.float)
	case TypeText:
		return fmt.Sprintf("Text(%q)", v.text)
	case TypeBlob:
		return fmt.Sprintf("Blob(%d bytes)", len(v.blob))
	default:
		return "Null"
	}
}
