package sqll

import (
	"errors"
	"fmt"
)

// Code is a numeric result code reported by the engine. Extended result
// codes carry their family in the low byte; Base strips the extension so
// callers can classify without enumerating every extended code.
type Code int32

// Primary result codes.
const (
	CodeOK         Code = 0
	CodeError      Code = 1
	CodeInternal   Code = 2
	CodePerm       Code = 3
	CodeAbort      Code = 4
	CodeBusy       Code = 5
	CodeLocked     Code = 6
	CodeNomem      Code = 7
	CodeReadOnly   Code = 8
	CodeInterrupt  Code = 9
	CodeIOErr      Code = 10
	CodeCorrupt    Code = 11
	CodeNotFound   Code = 12
	CodeFull       Code = 13
	CodeCantOpen   Code = 14
	CodeProtocol   Code = 15
	CodeEmpty      Code = 16
	CodeSchema     Code = 17
	CodeTooBig     Code = 18
	CodeConstraint Code = 19
	CodeMismatch   Code = 20
	CodeMisuse     Code = 21
	CodeNoLFS      Code = 22
	CodeAuth       Code = 23
	CodeFormat     Code = 24
	CodeRange      Code = 25
	CodeNotADB     Code = 26
	CodeNotice     Code = 27
	CodeWarning    Code = 28

	// Step outcomes, not errors.
	CodeRow  Code = 100
	CodeDone Code = 101
)

// Extended result codes referenced by this package. The engine defines many
// more; Base covers classification for the rest.
const (
	CodeBusyRecovery      Code = CodeBusy | (1 << 8)
	CodeBusySnapshot      Code = CodeBusy | (2 << 8)
	CodeBusyTimeout       Code = CodeBusy | (3 << 8)
	CodeLockedSharedCache Code = CodeLocked | (1 << 8)
	CodeLockedVTab        Code = CodeLocked | (2 << 8)

	CodeConstraintCheck      Code = CodeConstraint | (1 << 8)
	CodeConstraintForeignKey Code = CodeConstraint | (3 << 8)
	CodeConstraintNotNull    Code = CodeConstraint | (5 << 8)
	CodeConstraintPrimaryKey Code = CodeConstraint | (6 << 8)
	CodeConstraintUnique     Code = CodeConstraint | (8 << 8)

	CodeReadOnlyRecovery Code = CodeReadOnly | (1 << 8)
	CodeReadOnlyCantLock Code = CodeReadOnly | (2 << 8)

	CodeCantOpenNoTempDir Code = CodeCantOpen | (1 << 8)
	CodeCantOpenIsDir     Code = CodeCantOpen | (2 << 8)
	CodeCantOpenFullPath  Code = CodeCantOpen | (3 << 8)
	CodeCantOpenSymlink   Code = CodeCantOpen | (6 << 8)

	CodeIOErrRead      Code = CodeIOErr | (1 << 8)
	CodeIOErrShortRead Code = CodeIOErr | (2 << 8)
	CodeIOErrWrite     Code = CodeIOErr | (3 << 8)
	CodeIOErrFsync     Code = CodeIOErr | (4 << 8)
)

// Base returns the primary code an extended code belongs to. Primary codes
// return themselves.
func (c Code) Base() Code {
	return c & 0xff
}

var codeNames = map[Code]string{
	CodeOK:         "OK",
	CodeError:      "ERROR",
	CodeInternal:   "INTERNAL",
	CodePerm:       "PERM",
	CodeAbort:      "ABORT",
	CodeBusy:       "BUSY",
	CodeLocked:     "LOCKED",
	CodeNomem:      "NOMEM",
	CodeReadOnly:   "READONLY",
	CodeInterrupt:  "INTERRUPT",
	CodeIOErr:      "IOERR",
	CodeCorrupt:    "CORRUPT",
	CodeNotFound:   "NOTFOUND",
	CodeFull:       "FULL",
	CodeCantOpen:   "CANTOPEN",
	CodeProtocol:   "PROTOCOL",
	CodeEmpty:      "EMPTY",
	CodeSchema:     "SCHEMA",
	CodeTooBig:     "TOOBIG",
	CodeConstraint: "CONSTRAINT",
	CodeMismatch:   "MISMATCH",
	CodeMisuse:     "MISUSE",
	CodeNoLFS:      "NOLFS",
	CodeAuth:       "AUTH",
	CodeFormat:     "FORMAT",
	CodeRange:      "RANGE",
	CodeNotADB:     "NOTADB",
	CodeNotice:     "NOTICE",
	CodeWarning:    "WARNING",
	CodeRow:        "ROW",
	CodeDone:       "DONE",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if name, ok := codeNames[c.Base()]; ok {
		return fmt.Sprintf("%s(%d)", name, c)
	}
	return fmt.Sprintf("UNKNOWN(%d)", c)
}

// Busy reports whether the code belongs to the retryable BUSY or LOCKED
// families, as opposed to fatal execution errors.
func (c Code) Busy() bool {
	base := c.Base()
	return base == CodeBusy || base == CodeLocked
}

// Error is an error reported by the engine. It carries the engine's result
// code and message verbatim so callers can fall back to engine-specific
// diagnostics.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sqll: %s", e.Code)
	}
	return fmt.Sprintf("sqll: %s (%s)", e.Message, e.Code)
}

// Busy reports whether the error is a retryable lock contention failure.
func (e *Error) Busy() bool {
	return e.Code.Busy()
}

// IsBusy reports whether err is an engine error of the retryable BUSY or
// LOCKED class. Callers can use this to drive retry policy without matching
// on error messages.
func IsBusy(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Busy()
}

// ErrCode returns the engine result code carried by err, or CodeOK when err
// is not an engine error.
func ErrCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeOK
}

// ExecError is a batch execution failure. Offset is the byte offset in the
// input SQL of the statement that failed.
type ExecError struct {
	Offset int
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("sqll: exec at byte offset %d: %v", e.Offset, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// DecodeError is a failure to decode a column into the requested shape:
// a kind mismatch, an arity mismatch, or an out-of-range numeric narrowing.
type DecodeError struct {
	// Column is the zero-based column index, or -1 for row-level failures.
	Column int
	// Want describes the requested shape.
	Want string
	// Got is the column's actual kind.
	Got Type
	// Reason distinguishes overflow and arity failures from plain kind
	// mismatches.
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("sqll: decode row: %s", e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("sqll: decode column %d as %s: %s", e.Column, e.Want, e.Reason)
	}
	return fmt.Sprintf("sqll: decode column %d as %s: column is %s", e.Column, e.Want, e.Got)
}

// Misuse sentinels. These report incorrect use of this package rather than
// engine faults.
var (
	// ErrConnClosed is returned when operating on a closed connection.
	ErrConnClosed = errors.New("sqll: connection closed")
	// ErrStmtClosed is returned when operating on a finalized statement.
	ErrStmtClosed = errors.New("sqll: statement finalized")
	// ErrRowStale is returned when a Row is accessed after its statement
	// stepped, reset or finalized.
	ErrRowStale = errors.New("sqll: row accessed after statement advanced")
	// ErrMultipleStatements is returned by Prepare when the SQL text holds
	// more than one statement.
	ErrMultipleStatements = errors.New("sqll: sql contains more than one statement")
	// ErrNoStatement is returned by Prepare when the SQL text holds only
	// whitespace or comments.
	ErrNoStatement = errors.New("sqll: sql contains no statement")
	// ErrUnknownParameter is returned when binding by a name the statement
	// does not declare.
	ErrUnknownParameter = errors.New("sqll: unknown named parameter")
)
