package sqll

import (
	"strings"
	"sync/atomic"
)

// connRes is the shared cell owning the native database handle. The
// connection holds one reference and every prepared statement derived from
// it holds another, so the handle is closed exactly once when the last
// holder releases it, regardless of close order.
type connRes struct {
	db        dbHandle
	refs      atomic.Int32
	shareable bool
}

func newConnRes(db dbHandle, shareable bool) *connRes {
	r := &connRes{db: db, shareable: shareable}
	r.refs.Store(1)
	return r
}

func (r *connRes) retain() {
	r.refs.Add(1)
}

func (r *connRes) release() {
	if r.refs.Add(-1) == 0 {
		sqlite3_close_v2(r.db)
		r.db = nil
	}
}

// Conn is a database connection.
//
// A Conn that is not Shareable must be confined to a single goroutine or
// externally synchronized; see OpenOptions for the threading modes.
type Conn struct {
	res    *connRes
	closed bool
}

// Open opens a read-write connection to a new or existing database file.
func Open(path string) (*Conn, error) {
	return NewOpenOptions().ReadWrite().Create().Open(path)
}

// OpenInMemory opens an in-process, non-persistent database.
func OpenInMemory() (*Conn, error) {
	return NewOpenOptions().ReadWrite().Create().OpenInMemory()
}

func (c *Conn) handle() (dbHandle, error) {
	if c == nil || c.closed || c.res == nil {
		return nil, ErrConnClosed
	}
	return c.res.db, nil
}

// Close releases the connection's hold on the native database resource. The
// resource itself stays alive until every outstanding statement has been
// finalized. Close is idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.res.release()
	return nil
}

// Shareable reports whether this connection and its statements may be used
// from multiple goroutines, serialized internally by the engine. It is
// derived once at open time from the engine's build configuration and the
// open flags.
func (c *Conn) Shareable() bool {
	return c.res != nil && c.res.shareable
}

// Exec runs zero or more semicolon separated statements in order. It has no
// result rows and is meant for DDL and batch DML. On failure it reports the
// byte offset of the failing statement together with the engine error.
func (c *Conn) Exec(sql string) error {
	db, err := c.handle()
	if err != nil {
		return err
	}

	offset := 0
	for offset < len(sql) {
		rest := sql[offset:]
		if strings.TrimSpace(rest) == "" {
			break
		}
		stmt, tail, err := sqlite3_prepare_v3(db, rest, 0)
		if err != nil {
			return &ExecError{Offset: offset, Err: err}
		}
		if stmt == nil {
			// Whitespace or comments only.
			if tail == 0 {
				break
			}
			offset += tail
			continue
		}
		stepErr := stepToCompletion(stmt)
		code := sqlite3_finalize(stmt)
		if stepErr != nil {
			return &ExecError{Offset: offset, Err: stepErr}
		}
		if code != CodeOK {
			return &ExecError{Offset: offset, Err: codeError(code)}
		}
		offset += tail
	}
	return nil
}

// stepToCompletion drives a statement until it reports DONE, discarding any
// result rows.
func stepToCompletion(stmt stmtHandle) error {
	for {
		switch code := sqlite3_step(stmt); code {
		case CodeRow:
		case CodeDone:
			return nil
		default:
			return stmtError(stmt)
		}
	}
}

// Prepare compiles exactly one SQL statement. It fails with
// ErrMultipleStatements when the text contains more than one statement and
// with ErrNoStatement when it contains none.
//
// The returned statement keeps the native database resource alive for as
// long as it exists, independently of the connection.
func (c *Conn) Prepare(sql string) (*Stmt, error) {
	return c.PrepareWith(sql, Transient)
}

// PrepareWith compiles exactly one SQL statement with the given persistence
// mode. Persistent hints the engine that the statement will be reset and
// reused many times, making plan caching worthwhile.
func (c *Conn) PrepareWith(sql string, mode PrepareMode) (*Stmt, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	var flags uint32
	if mode == Persistent {
		flags = preparePersistent
	}

	stmt, tail, err := sqlite3_prepare_v3(db, sql, flags)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, ErrNoStatement
	}
	if strings.TrimSpace(sql[tail:]) != "" {
		sqlite3_finalize(stmt)
		return nil, ErrMultipleStatements
	}

	c.res.retain()
	return &Stmt{res: c.res, ptr: stmt, gen: 1}, nil
}

// SetBusyTimeout configures the engine-level busy handler: blocked
// operations are retried internally for up to ms milliseconds before
// reporting BUSY. Zero disables the handler so contention fails immediately.
func (c *Conn) SetBusyTimeout(ms int) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	if code := sqlite3_busy_timeout(db, ms); code != CodeOK {
		return dbError(rawPointer(db))
	}
	return nil
}

// Changes returns the number of rows inserted, updated or deleted by the
// most recent statement.
func (c *Conn) Changes() (int, error) {
	db, err := c.handle()
	if err != nil {
		return 0, err
	}
	return sqlite3_changes(db), nil
}

// TotalChanges returns the number of rows inserted, updated and deleted
// since the connection was opened.
func (c *Conn) TotalChanges() (int, error) {
	db, err := c.handle()
	if err != nil {
		return 0, err
	}
	return sqlite3_total_changes(db), nil
}

// LastInsertRowID returns the rowid of the most recent successful INSERT.
func (c *Conn) LastInsertRowID() (int64, error) {
	db, err := c.handle()
	if err != nil {
		return 0, err
	}
	return sqlite3_last_insert_rowid(db), nil
}

// Autocommit reports whether the connection is in autocommit mode, which is
// false inside an explicit transaction.
func (c *Conn) Autocommit() (bool, error) {
	db, err := c.handle()
	if err != nil {
		return false, err
	}
	return sqlite3_get_autocommit(db), nil
}

// ReadOnly reports whether the named schema ("main" for the primary
// database) was opened read-only.
func (c *Conn) ReadOnly(schema string) (bool, error) {
	db, err := c.handle()
	if err != nil {
		return false, err
	}
	return sqlite3_db_readonly(db, schema) == 1, nil
}
