package sqll

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// define all necessary constants first

// Open flags accepted by sqlite3_open_v2.
const (
	openReadOnly     = 0x00000001
	openReadWrite    = 0x00000002
	openCreate       = 0x00000004
	openURI          = 0x00000040
	openMemory       = 0x00000080
	openNoMutex      = 0x00008000
	openFullMutex    = 0x00010000
	openSharedCache  = 0x00020000
	openPrivateCache = 0x00040000
	openNoFollow     = 0x01000000
	openExResCode    = 0x02000000
)

// Prepare flags accepted by sqlite3_prepare_v3.
const (
	preparePersistent = 0x01
)

// sqliteTransient is the SQLITE_TRANSIENT destructor: the engine makes its
// own copy of bound text and blob buffers before returning. Required because
// the Go garbage collector may move or free the source buffer after the call.
const sqliteTransient = ^uintptr(0)

// define opaque pointers as-is and accept them as exact arguments
type sqlite3_db_t struct{}
type sqlite3_stmt_t struct{}

type dbHandle *sqlite3_db_t
type stmtHandle *sqlite3_stmt_t

// then, define C extern methods
var (
	// always use low level types here (uintptr, numbers) - never exported
	// wrapper types
	c_sqlite3_open_v2 func(
		filename unsafe.Pointer, // const char*
		db unsafe.Pointer, // sqlite3**
		flags int32,
		vfs unsafe.Pointer, // const char* | NULL
	) int32

	c_sqlite3_close_v2 func(
		db unsafe.Pointer, // sqlite3*
	) int32

	c_sqlite3_prepare_v3 func(
		db unsafe.Pointer, // sqlite3*
		sql unsafe.Pointer, // const char*
		nByte int32,
		prepFlags uint32,
		stmt unsafe.Pointer, // sqlite3_stmt**
		tail unsafe.Pointer, // const char**
	) int32

	c_sqlite3_step     func(stmt unsafe.Pointer) int32
	c_sqlite3_reset    func(stmt unsafe.Pointer) int32
	c_sqlite3_finalize func(stmt unsafe.Pointer) int32

	c_sqlite3_clear_bindings func(stmt unsafe.Pointer) int32

	c_sqlite3_bind_int64  func(stmt unsafe.Pointer, index int32, value int64) int32
	c_sqlite3_bind_double func(stmt unsafe.Pointer, index int32, value float64) int32
	c_sqlite3_bind_null   func(stmt unsafe.Pointer, index int32) int32

	c_sqlite3_bind_text func(
		stmt unsafe.Pointer,
		index int32,
		data unsafe.Pointer, // const char*
		n int32,
		destructor uintptr, // void (*)(void*) | SQLITE_TRANSIENT
	) int32

	c_sqlite3_bind_blob func(
		stmt unsafe.Pointer,
		index int32,
		data unsafe.Pointer, // const void*
		n int32,
		destructor uintptr,
	) int32

	c_sqlite3_bind_parameter_index func(stmt unsafe.Pointer, name string) int32
	c_sqlite3_bind_parameter_count func(stmt unsafe.Pointer) int32

	c_sqlite3_column_count    func(stmt unsafe.Pointer) int32
	c_sqlite3_column_type     func(stmt unsafe.Pointer, index int32) int32
	c_sqlite3_column_int64    func(stmt unsafe.Pointer, index int32) int64
	c_sqlite3_column_double   func(stmt unsafe.Pointer, index int32) float64
	c_sqlite3_column_bytes    func(stmt unsafe.Pointer, index int32) int32
	c_sqlite3_column_blob     func(stmt unsafe.Pointer, index int32) unsafe.Pointer
	c_sqlite3_column_text     func(stmt unsafe.Pointer, index int32) unsafe.Pointer
	c_sqlite3_column_name     func(stmt unsafe.Pointer, index int32) unsafe.Pointer
	c_sqlite3_column_decltype func(stmt unsafe.Pointer, index int32) unsafe.Pointer

	c_sqlite3_db_handle func(stmt unsafe.Pointer) unsafe.Pointer

	c_sqlite3_errcode          func(db unsafe.Pointer) int32
	c_sqlite3_extended_errcode func(db unsafe.Pointer) int32
	c_sqlite3_errmsg           func(db unsafe.Pointer) unsafe.Pointer
	c_sqlite3_errstr           func(code int32) unsafe.Pointer

	c_sqlite3_threadsafe   func() int32
	c_sqlite3_busy_timeout func(db unsafe.Pointer, ms int32) int32

	c_sqlite3_changes           func(db unsafe.Pointer) int32
	c_sqlite3_total_changes     func(db unsafe.Pointer) int32
	c_sqlite3_last_insert_rowid func(db unsafe.Pointer) int64
	c_sqlite3_get_autocommit    func(db unsafe.Pointer) int32
	c_sqlite3_db_readonly       func(db unsafe.Pointer, schema string) int32

	c_sqlite3_libversion        func() unsafe.Pointer
	c_sqlite3_libversion_number func() int32
)

// implement a function to register extern methods from loaded lib
// DO NOT load lib - as it will be done externally
func registerSQLite(handle uintptr) {
	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close_v2, handle, "sqlite3_close_v2")
	purego.RegisterLibFunc(&c_sqlite3_prepare_v3, handle, "sqlite3_prepare_v3")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_clear_bindings, handle, "sqlite3_clear_bindings")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_double, handle, "sqlite3_bind_double")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_bind_text, handle, "sqlite3_bind_text")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob, handle, "sqlite3_bind_blob")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_index, handle, "sqlite3_bind_parameter_index")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_count, handle, "sqlite3_bind_parameter_count")
	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_double, handle, "sqlite3_column_double")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_name, handle, "sqlite3_column_name")
	purego.RegisterLibFunc(&c_sqlite3_column_decltype, handle, "sqlite3_column_decltype")
	purego.RegisterLibFunc(&c_sqlite3_db_handle, handle, "sqlite3_db_handle")
	purego.RegisterLibFunc(&c_sqlite3_errcode, handle, "sqlite3_errcode")
	purego.RegisterLibFunc(&c_sqlite3_extended_errcode, handle, "sqlite3_extended_errcode")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_errstr, handle, "sqlite3_errstr")
	purego.RegisterLibFunc(&c_sqlite3_threadsafe, handle, "sqlite3_threadsafe")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_changes, handle, "sqlite3_changes")
	purego.RegisterLibFunc(&c_sqlite3_total_changes, handle, "sqlite3_total_changes")
	purego.RegisterLibFunc(&c_sqlite3_last_insert_rowid, handle, "sqlite3_last_insert_rowid")
	purego.RegisterLibFunc(&c_sqlite3_get_autocommit, handle, "sqlite3_get_autocommit")
	purego.RegisterLibFunc(&c_sqlite3_db_readonly, handle, "sqlite3_db_readonly")
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_libversion_number, handle, "sqlite3_libversion_number")
}

var (
	initOnce sync.Once
	initErr  error
)

// Initialize loads the SQLite shared library and registers the extern
// methods. It is called implicitly by OpenOptions and the database/sql
// driver; calling it directly is only needed to surface load errors early.
// The library is loaded at most once per process.
func Initialize() error {
	initOnce.Do(func() {
		handle, err := loadLibrary()
		if err != nil {
			initErr = err
			return
		}
		registerSQLite(handle)
	})
	return initErr
}

// libLoaded reports whether the shared library has been loaded and the
// extern methods registered.
func libLoaded() bool {
	return c_sqlite3_open_v2 != nil
}

// Helpers

func copyCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

func cStringPtr(s string) (ptr unsafe.Pointer, keepAlive func()) {
	// Allocate Go memory with null terminator; valid during the call
	b := make([]byte, len(s)+1)
	copy(b, s)
	return unsafe.Pointer(&b[0]), func() { runtime.KeepAlive(b) }
}

// Go wrappers over imported C bindings

// Opens a database with the given flags. On failure the partially opened
// handle is closed and the error carries the engine's code and message.
func sqlite3_open_v2(name string, flags int32) (dbHandle, error) {
	ptr, keep := cStringPtr(name)
	var db dbHandle
	code := c_sqlite3_open_v2(ptr, unsafe.Pointer(&db), flags, nil)
	keep()
	if code != 0 {
		// The handle is valid even when open fails and must be closed to
		// avoid a leak.
		err := dbError(unsafe.Pointer(db))
		if db != nil {
			c_sqlite3_close_v2(unsafe.Pointer(db))
		}
		return nil, err
	}
	return db, nil
}

// Closes a database handle. The native resource stays alive until every
// statement derived from it has been finalized (v2 semantics).
func sqlite3_close_v2(db dbHandle) Code {
	if db == nil {
		return CodeOK
	}
	return Code(c_sqlite3_close_v2(unsafe.Pointer(db)))
}

// Compiles the first statement in sql. Returns the compiled statement (nil
// when sql holds only whitespace or comments) and the byte offset of the
// unconsumed tail.
func sqlite3_prepare_v3(db dbHandle, sql string, prepFlags uint32) (stmtHandle, int, error) {
	ptr, keep := cStringPtr(sql)
	var stmt stmtHandle
	var tail unsafe.Pointer
	code := c_sqlite3_prepare_v3(
		unsafe.Pointer(db),
		ptr,
		int32(len(sql)+1),
		prepFlags,
		unsafe.Pointer(&stmt),
		unsafe.Pointer(&tail),
	)
	offset := len(sql)
	if tail != nil {
		offset = int(uintptr(tail) - uintptr(ptr))
	}
	keep()
	if code != 0 {
		return nil, offset, dbError(unsafe.Pointer(db))
	}
	return stmt, offset, nil
}

func sqlite3_step(stmt stmtHandle) Code {
	return Code(c_sqlite3_step(unsafe.Pointer(stmt)))
}

func sqlite3_reset(stmt stmtHandle) Code {
	return Code(c_sqlite3_reset(unsafe.Pointer(stmt)))
}

func sqlite3_finalize(stmt stmtHandle) Code {
	return Code(c_sqlite3_finalize(unsafe.Pointer(stmt)))
}

func sqlite3_clear_bindings(stmt stmtHandle) Code {
	return Code(c_sqlite3_clear_bindings(unsafe.Pointer(stmt)))
}

func sqlite3_bind_int64(stmt stmtHandle, index int, value int64) Code {
	return Code(c_sqlite3_bind_int64(unsafe.Pointer(stmt), int32(index), value))
}

func sqlite3_bind_double(stmt stmtHandle, index int, value float64) Code {
	return Code(c_sqlite3_bind_double(unsafe.Pointer(stmt), int32(index), value))
}

func sqlite3_bind_null(stmt stmtHandle, index int) Code {
	return Code(c_sqlite3_bind_null(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_bind_text(stmt stmtHandle, index int, value string) Code {
	if len(value) == 0 {
		var zero byte
		return Code(c_sqlite3_bind_text(unsafe.Pointer(stmt), int32(index), unsafe.Pointer(&zero), 0, sqliteTransient))
	}
	data := unsafe.Pointer(unsafe.StringData(value))
	code := Code(c_sqlite3_bind_text(unsafe.Pointer(stmt), int32(index), data, int32(len(value)), sqliteTransient))
	runtime.KeepAlive(value)
	return code
}

func sqlite3_bind_blob(stmt stmtHandle, index int, value []byte) Code {
	if len(value) == 0 {
		// Zero-length blob, distinct from NULL.
		var zero byte
		return Code(c_sqlite3_bind_blob(unsafe.Pointer(stmt), int32(index), unsafe.Pointer(&zero), 0, sqliteTransient))
	}
	code := Code(c_sqlite3_bind_blob(unsafe.Pointer(stmt), int32(index), unsafe.Pointer(&value[0]), int32(len(value)), sqliteTransient))
	runtime.KeepAlive(value)
	return code
}

// Returns the 1-based index of a named parameter, or 0 if absent.
func sqlite3_bind_parameter_index(stmt stmtHandle, name string) int {
	return int(c_sqlite3_bind_parameter_index(unsafe.Pointer(stmt), name))
}

func sqlite3_bind_parameter_count(stmt stmtHandle) int {
	return int(c_sqlite3_bind_parameter_count(unsafe.Pointer(stmt)))
}

func sqlite3_column_count(stmt stmtHandle) int {
	return int(c_sqlite3_column_count(unsafe.Pointer(stmt)))
}

func sqlite3_column_type(stmt stmtHandle, index int) Type {
	return Type(c_sqlite3_column_type(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_column_int64(stmt stmtHandle, index int) int64 {
	return c_sqlite3_column_int64(unsafe.Pointer(stmt), int32(index))
}

func sqlite3_column_double(stmt stmtHandle, index int) float64 {
	return c_sqlite3_column_double(unsafe.Pointer(stmt), int32(index))
}

// Returns a borrowed view of a TEXT column. The slice aliases engine memory
// and is valid only until the next step, reset or finalize.
func sqlite3_column_text(stmt stmtHandle, index int) []byte {
	ptr := c_sqlite3_column_text(unsafe.Pointer(stmt), int32(index))
	if ptr == nil {
		return nil
	}
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	if n <= 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(ptr), n)
}

// Returns a borrowed view of a BLOB column, same validity window as
// sqlite3_column_text.
func sqlite3_column_blob(stmt stmtHandle, index int) []byte {
	ptr := c_sqlite3_column_blob(unsafe.Pointer(stmt), int32(index))
	if ptr == nil {
		return nil
	}
	n := c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index))
	if n <= 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(ptr), n)
}

func sqlite3_column_name(stmt stmtHandle, index int) string {
	return copyCString(c_sqlite3_column_name(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_column_decltype(stmt stmtHandle, index int) string {
	return copyCString(c_sqlite3_column_decltype(unsafe.Pointer(stmt), int32(index)))
}

func sqlite3_db_handle(stmt stmtHandle) dbHandle {
	return dbHandle(c_sqlite3_db_handle(unsafe.Pointer(stmt)))
}

func sqlite3_threadsafe() bool {
	return c_sqlite3_threadsafe() != 0
}

func sqlite3_busy_timeout(db dbHandle, ms int) Code {
	return Code(c_sqlite3_busy_timeout(unsafe.Pointer(db), int32(ms)))
}

func sqlite3_changes(db dbHandle) int {
	return int(c_sqlite3_changes(unsafe.Pointer(db)))
}

func sqlite3_total_changes(db dbHandle) int {
	return int(c_sqlite3_total_changes(unsafe.Pointer(db)))
}

func sqlite3_last_insert_rowid(db dbHandle) int64 {
	return c_sqlite3_last_insert_rowid(unsafe.Pointer(db))
}

func sqlite3_get_autocommit(db dbHandle) bool {
	return c_sqlite3_get_autocommit(unsafe.Pointer(db)) != 0
}

func sqlite3_db_readonly(db dbHandle, schema string) int {
	return int(c_sqlite3_db_readonly(unsafe.Pointer(db), schema))
}

func rawPointer(db dbHandle) unsafe.Pointer {
	return unsafe.Pointer(db)
}

// dbError builds an *Error from the connection's current error state,
// preferring the extended result code when available.
func dbError(db unsafe.Pointer) error {
	if db == nil {
		return &Error{Code: CodeNomem, Message: "out of memory"}
	}
	code := Code(c_sqlite3_extended_errcode(db))
	if code == CodeOK {
		code = Code(c_sqlite3_errcode(db))
	}
	msg := copyCString(c_sqlite3_errmsg(db))
	return &Error{Code: code, Message: msg}
}

// stmtError builds an *Error from the statement's owning connection.
func stmtError(stmt stmtHandle) error {
	return dbError(c_sqlite3_db_handle(unsafe.Pointer(stmt)))
}

// codeError builds an *Error from a bare result code, using the engine's
// generic English description since no connection context is available.
func codeError(code Code) error {
	return &Error{Code: code, Message: copyCString(c_sqlite3_errstr(int32(code)))}
}
