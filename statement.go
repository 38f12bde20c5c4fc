package sqll

import (
	"iter"
	"math"
)

// PrepareMode selects how the engine compiles a statement.
type PrepareMode int

const (
	// Transient statements are compiled for a small number of executions.
	Transient PrepareMode = iota
	// Persistent statements hint the engine to cache the compiled plan for
	// many reset and reuse cycles.
	Persistent
)

// State is the outcome of a step.
type State int

const (
	// StateRow means a result row is available for reading.
	StateRow State = iota
	// StateDone means the statement has been entirely evaluated.
	StateDone
)

// Stmt is a prepared statement.
//
// A Stmt co-owns the native database resource of the connection it was
// prepared on: the resource is released only after both the connection and
// every statement derived from it have been closed, in any order.
//
// A Stmt is owned by one logical user at a time; it is only safe for
// concurrent use when its connection is Shareable.
type Stmt struct {
	res *connRes
	ptr stmtHandle

	// gen stamps Row views handed out by Next; it advances on every state
	// changing call so stale views fail fast instead of reading a
	// different row's memory.
	gen uint64

	// stepped tracks whether a step has happened since the last reset.
	// Binding is rejected in that window.
	stepped bool

	closed bool
}

func (s *Stmt) check() error {
	if s == nil || s.closed {
		return ErrStmtClosed
	}
	return nil
}

// Close finalizes the statement, releasing the native statement handle and
// the statement's hold on the connection resource. Close is idempotent.
func (s *Stmt) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.gen++
	sqlite3_finalize(s.ptr)
	s.ptr = nil
	s.res.release()
	return nil
}

// Bind binds a single parameter. The first parameter has index 1, per the
// engine's convention.
//
// Binding while the statement is mid-iteration (a step has happened since
// the last reset) is rejected with MISUSE rather than implicitly resetting;
// call Reset first.
//
// Accepted values: nil or Null for NULL, Go integer types, float32/float64,
// bool, string, []byte, and Value.
func (s *Stmt) Bind(index int, value any) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.stepped {
		return &Error{Code: CodeMisuse, Message: "bind on a statement mid-iteration; reset it first"}
	}
	return s.bind(index, value)
}

// BindName binds a single parameter by its declared name, such as ":name"
// or "@name". It fails with ErrUnknownParameter when the statement does not
// declare the name.
func (s *Stmt) BindName(name string, value any) error {
	if err := s.check(); err != nil {
		return err
	}
	index := sqlite3_bind_parameter_index(s.ptr, name)
	if index == 0 {
		return ErrUnknownParameter
	}
	return s.Bind(index, value)
}

func (s *Stmt) bind(index int, value any) error {
	var code Code
	switch v := value.(type) {
	case nil:
		code = sqlite3_bind_null(s.ptr, index)
	case Null:
		code = sqlite3_bind_null(s.ptr, index)
	case Value:
		return s.bindValue(index, v)
	case int64:
		code = sqlite3_bind_int64(s.ptr, index, v)
	case int:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case int32:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case int16:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case int8:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case uint:
		if uint64(v) > math.MaxInt64 {
			return &Error{Code: CodeRange, Message: "unsigned value overflows a 64-bit signed column"}
		}
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return &Error{Code: CodeRange, Message: "unsigned value overflows a 64-bit signed column"}
		}
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case uint32:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case uint16:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case uint8:
		code = sqlite3_bind_int64(s.ptr, index, int64(v))
	case float64:
		code = sqlite3_bind_double(s.ptr, index, v)
	case float32:
		code = sqlite3_bind_double(s.ptr, index, float64(v))
	case bool:
		var i int64
		if v {
			i = 1
		}
		code = sqlite3_bind_int64(s.ptr, index, i)
	case string:
		code = sqlite3_bind_text(s.ptr, index, v)
	case []byte:
		code = sqlite3_bind_blob(s.ptr, index, v)
	default:
		return &Error{Code: CodeMismatch, Message: "unsupported bind value type"}
	}
	if code != CodeOK {
		return stmtError(s.ptr)
	}
	return nil
}

func (s *Stmt) bindValue(index int, v Value) error {
	switch v.Type() {
	case TypeInteger:
		i, _ := v.Integer()
		return s.bind(index, i)
	case TypeFloat:
		f, _ := v.Float()
		return s.bind(index, f)
	case TypeText:
		t, _ := v.Text()
		return s.bind(index, t)
	case TypeBlob:
		b, _ := v.Blob()
		return s.bind(index, b)
	default:
		return s.bind(index, Null{})
	}
}

// BindAll binds values to parameters 1..len(values) in order.
func (s *Stmt) BindAll(values ...any) error {
	for i, v := range values {
		if err := s.Bind(i+1, v); err != nil {
			return err
		}
	}
	return nil
}

// Step advances execution by one row. It returns StateRow when a result row
// is available and StateDone when the statement has been entirely
// evaluated. A BUSY or LOCKED error is retryable after backing off or
// configuring Conn.SetBusyTimeout; all other errors are fatal for this
// execution.
func (s *Stmt) Step() (State, error) {
	if err := s.check(); err != nil {
		return StateDone, err
	}
	s.gen++
	s.stepped = true
	switch code := sqlite3_step(s.ptr); code {
	case CodeRow:
		return StateRow, nil
	case CodeDone:
		return StateDone, nil
	default:
		return StateDone, stmtError(s.ptr)
	}
}

// Next advances execution and returns a view over the next result row, or
// nil when the statement is done. The view is valid only until the next
// Step, Next, Reset or Close call on this statement; accessing it later
// fails with ErrRowStale.
func (s *Stmt) Next() (*Row, error) {
	state, err := s.Step()
	if err != nil {
		return nil, err
	}
	if state == StateDone {
		return nil, nil
	}
	return &Row{stmt: s, gen: s.gen}, nil
}

// Reset returns the statement to the ready state so it can be executed
// again. Bound parameter values are preserved, per the engine's convention;
// use ClearBindings to drop them.
//
// The engine's reset also reports the error of the statement's most recent
// step, which the caller has already observed; it is not re-reported here.
func (s *Stmt) Reset() error {
	if err := s.check(); err != nil {
		return err
	}
	s.gen++
	s.stepped = false
	sqlite3_reset(s.ptr)
	return nil
}

// ClearBindings sets every bound parameter back to NULL.
func (s *Stmt) ClearBindings() error {
	if err := s.check(); err != nil {
		return err
	}
	if code := sqlite3_clear_bindings(s.ptr); code != CodeOK {
		return stmtError(s.ptr)
	}
	return nil
}

// ScanNext advances to the next row and decodes it into dest, combining
// Next and Row.Scan. It reports false when the statement is done.
func (s *Stmt) ScanNext(dest ...any) (bool, error) {
	row, err := s.Next()
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	return true, row.Scan(dest...)
}

// Iter returns a lazy, single-pass sequence over the remaining rows of the
// statement. Each row view is valid only for its iteration. Exhausting or
// breaking the sequence leaves the statement where iteration stopped; an
// error ends the sequence after being yielded once.
func (s *Stmt) Iter() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for {
			row, err := s.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// RowScanner is implemented by types that can decode themselves from a
// result row.
type RowScanner interface {
	ScanRow(*Row) error
}

// Rows returns a lazy, single-pass sequence of decoded rows over the
// remaining execution of the statement.
func Rows[T any, PT interface {
	*T
	RowScanner
}](s *Stmt) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			row, err := s.Next()
			var v T
			if err != nil {
				yield(v, err)
				return
			}
			if row == nil {
				return
			}
			if err := PT(&v).ScanRow(row); err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// ColumnCount returns the number of columns produced by the statement.
func (s *Stmt) ColumnCount() int {
	if s.check() != nil {
		return 0
	}
	return sqlite3_column_count(s.ptr)
}

// ColumnName returns the name of a column. The first column has index 0.
func (s *Stmt) ColumnName(index int) string {
	if s.check() != nil {
		return ""
	}
	return sqlite3_column_name(s.ptr, index)
}

// ColumnNames returns the names of all columns in order.
func (s *Stmt) ColumnNames() []string {
	n := s.ColumnCount()
	names := make([]string, n)
	for i := range names {
		names[i] = s.ColumnName(i)
	}
	return names
}

// ColumnDeclType returns the declared type of a result column from the table
// schema, such as "TIMESTAMP", or "" for expressions and unknown columns.
func (s *Stmt) ColumnDeclType(index int) string {
	if s.check() != nil {
		return ""
	}
	return sqlite3_column_decltype(s.ptr, index)
}

// ParameterCount returns the number of parameters the statement declares.
func (s *Stmt) ParameterCount() int {
	if s.check() != nil {
		return 0
	}
	return sqlite3_bind_parameter_count(s.ptr)
}

// ParameterIndex returns the 1-based index of a named parameter, or 0 when
// the statement does not declare the name.
func (s *Stmt) ParameterIndex(name string) int {
	if s.check() != nil {
		return 0
	}
	return sqlite3_bind_parameter_index(s.ptr, name)
}
