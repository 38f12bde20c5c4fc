package sqll

import (
	"errors"
	"path/filepath"
	"testing"
)

// helper to require a loaded engine library for integration tests
func requireLib(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("engine library is not available; set SQLL_LIBRARY_PATH to run integration tests: %v", err)
	}
}

func openMem(t *testing.T) *Conn {
	t.Helper()
	requireLib(t)
	conn, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOpenCloseIdempotent(t *testing.T) {
	conn := openMem(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := conn.Prepare("SELECT 1"); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("prepare on closed connection: got %v, want ErrConnClosed", err)
	}
	if err := conn.Exec("SELECT 1"); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("exec on closed connection: got %v, want ErrConnClosed", err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "ro.db")

	conn, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Exec("CREATE TABLE t (x INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ro, err := NewOpenOptions().ReadOnly().Open(path)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	defer ro.Close()

	readonly, err := ro.ReadOnly("main")
	if err != nil {
		t.Fatalf("readonly query: %v", err)
	}
	if !readonly {
		t.Fatalf("expected main schema to be read-only")
	}

	err = ro.Exec("INSERT INTO t VALUES (1)")
	if err == nil {
		t.Fatalf("expected write on read-only connection to fail")
	}
	if code := ErrCode(err); code.Base() != CodeReadOnly {
		t.Fatalf("got code %v, want base READONLY", code)
	}
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := NewOpenOptions().ReadOnly().Open(path)
	if err == nil {
		t.Fatalf("expected open of missing file to fail in read-only mode")
	}
	if code := ErrCode(err); code.Base() != CodeCantOpen {
		t.Fatalf("got code %v, want base CANTOPEN", code)
	}
}

func TestExecBatch(t *testing.T) {
	conn := openMem(t)

	err := conn.Exec(`
		CREATE TABLE users (name TEXT, age INTEGER);
		INSERT INTO users VALUES ('Alice', 42);
		INSERT INTO users VALUES ('Bob', 69);
	`)
	if err != nil {
		t.Fatalf("exec batch: %v", err)
	}

	total, err := conn.TotalChanges()
	if err != nil {
		t.Fatalf("total changes: %v", err)
	}
	if total != 2 {
		t.Fatalf("total changes = %d, want 2", total)
	}
}

func TestExecErrorOffset(t *testing.T) {
	conn := openMem(t)

	sql := "CREATE TABLE t (x INTEGER); INSERT INTO nosuch VALUES (1)"
	err := conn.Exec(sql)
	if err == nil {
		t.Fatalf("expected batch to fail on the second statement")
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %T, want *ExecError", err)
	}
	// The offset points at the failing statement, past the first one.
	if execErr.Offset <= 0 || execErr.Offset >= len(sql) {
		t.Fatalf("offset = %d, want within the second statement", execErr.Offset)
	}

	// The first statement ran before the failure.
	if err := conn.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("first statement did not take effect: %v", err)
	}
}

func TestPrepareSingleStatementOnly(t *testing.T) {
	conn := openMem(t)

	if _, err := conn.Prepare("SELECT 1; SELECT 2"); !errors.Is(err, ErrMultipleStatements) {
		t.Fatalf("got %v, want ErrMultipleStatements", err)
	}
	if _, err := conn.Prepare("  -- just a comment\n"); !errors.Is(err, ErrNoStatement) {
		t.Fatalf("got %v, want ErrNoStatement", err)
	}

	// Trailing whitespace and semicolon after a single statement are fine.
	stmt, err := conn.Prepare("SELECT 1; \n")
	if err != nil {
		t.Fatalf("prepare with trailing semicolon: %v", err)
	}
	stmt.Close()
}

func TestPrepareSyntaxError(t *testing.T) {
	conn := openMem(t)

	_, err := conn.Prepare("SELEC 1")
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if code := ErrCode(err); code.Base() != CodeError {
		t.Fatalf("got code %v, want base ERROR", code)
	}
}

func TestStatementOutlivesConnection(t *testing.T) {
	requireLib(t)
	conn, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Exec("CREATE TABLE t (x INTEGER); INSERT INTO t VALUES (7)"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	stmt, err := conn.Prepare("SELECT x FROM t")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	// Dropping the connection must not invalidate the statement: the native
	// resource stays alive until the last owner is gone.
	if err := conn.Close(); err != nil {
		t.Fatalf("close connection: %v", err)
	}

	var x int64
	ok, err := stmt.ScanNext(&x)
	if err != nil {
		t.Fatalf("step after connection close: %v", err)
	}
	if !ok || x != 7 {
		t.Fatalf("got ok=%v x=%d, want row with 7", ok, x)
	}
	if err := stmt.Close(); err != nil {
		t.Fatalf("close statement: %v", err)
	}
}

func TestChangeCounters(t *testing.T) {
	conn := openMem(t)

	if err := conn.Exec("CREATE TABLE t (x INTEGER)"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := conn.Exec("INSERT INTO t VALUES (1), (2), (3)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	changes, err := conn.Changes()
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if changes != 3 {
		t.Fatalf("changes = %d, want 3", changes)
	}

	rowid, err := conn.LastInsertRowID()
	if err != nil {
		t.Fatalf("last insert rowid: %v", err)
	}
	if rowid != 3 {
		t.Fatalf("last insert rowid = %d, want 3", rowid)
	}
}

func TestAutocommit(t *testing.T) {
	conn := openMem(t)

	ac, err := conn.Autocommit()
	if err != nil {
		t.Fatalf("autocommit: %v", err)
	}
	if !ac {
		t.Fatalf("expected autocommit on a fresh connection")
	}

	if err := conn.Exec("BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	ac, err = conn.Autocommit()
	if err != nil {
		t.Fatalf("autocommit: %v", err)
	}
	if ac {
		t.Fatalf("expected autocommit off inside a transaction")
	}
	if err := conn.Exec("ROLLBACK"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
}

func TestBusyVersusConstraint(t *testing.T) {
	requireLib(t)
	path := filepath.Join(t.TempDir(), "busy.db")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	if err := a.Exec("CREATE TABLE t (x INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	b, err := Open(path)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	// Hold a write lock from one connection; the other fails fast with a
	// retryable BUSY since no busy timeout is configured.
	if err := a.Exec("BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("begin immediate: %v", err)
	}
	err = b.Exec("BEGIN IMMEDIATE")
	if err == nil {
		t.Fatalf("expected second write transaction to fail")
	}
	if !IsBusy(err) {
		t.Fatalf("got %v, want a busy error", err)
	}
	if err := a.Exec("COMMIT"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A constraint violation is fatal for the statement, not retryable.
	if err := a.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = a.Exec("INSERT INTO t VALUES (1)")
	if err == nil {
		t.Fatalf("expected constraint violation")
	}
	if IsBusy(err) {
		t.Fatalf("constraint violation must not classify as busy: %v", err)
	}
	if code := ErrCode(err); code.Base() != CodeConstraint {
		t.Fatalf("got code %v, want base CONSTRAINT", code)
	}
}

func TestVersion(t *testing.T) {
	requireLib(t)

	version, err := Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version == "" {
		t.Fatalf("expected a non-empty version string")
	}
	number, err := VersionNumber()
	if err != nil {
		t.Fatalf("version number: %v", err)
	}
	if number < 3000000 {
		t.Fatalf("version number = %d, want a 3.x release", number)
	}
}
