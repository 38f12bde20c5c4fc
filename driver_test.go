package sqll

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQL(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	requireLib(t)
	db, err := sql.Open("sqll", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// tempDSN returns a DSN backed by a file, so every pooled connection sees
// the same database.
func tempDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "driver.db")
}

func TestDriverCRUD(t *testing.T) {
	db := openSQL(t, tempDSN(t))
	require.NoError(t, db.Ping())

	_, err := db.Exec("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)")
	require.NoError(t, err)

	res, err := db.Exec("INSERT INTO users (name, age) VALUES (?, ?), (?, ?)", "Alice", 42, "Bob", 69)
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)
	lastID, err := res.LastInsertId()
	require.NoError(t, err)
	require.EqualValues(t, 2, lastID)

	rows, err := db.Query("SELECT name, age FROM users ORDER BY age")
	require.NoError(t, err)
	defer rows.Close()

	type user struct {
		name string
		age  int
	}
	var got []user
	for rows.Next() {
		var u user
		require.NoError(t, rows.Scan(&u.name, &u.age))
		got = append(got, u)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []user{{"Alice", 42}, {"Bob", 69}}, got)

	res, err = db.Exec("UPDATE users SET age = age + 1 WHERE name = ?", "Alice")
	require.NoError(t, err)
	affected, err = res.RowsAffected()
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	var age int
	require.NoError(t, db.QueryRow("SELECT age FROM users WHERE name = ?", "Alice").Scan(&age))
	require.Equal(t, 43, age)

	_, err = db.Exec("DELETE FROM users")
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM users").Scan(&count))
	require.Zero(t, count)
}

func TestDriverMemoryMode(t *testing.T) {
	db := openSQL(t, ":memory:")
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	_, err := db.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	var x int
	require.NoError(t, db.QueryRow("SELECT x FROM t").Scan(&x))
	require.Equal(t, 1, x)
}

func TestDriverNullValues(t *testing.T) {
	db := openSQL(t, tempDSN(t))

	_, err := db.Exec("CREATE TABLE t (s TEXT, n INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t VALUES (NULL, NULL), ('x', 7)")
	require.NoError(t, err)

	rows, err := db.Query("SELECT s, n FROM t ORDER BY n NULLS FIRST")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var s sql.NullString
	var n sql.NullInt64
	require.NoError(t, rows.Scan(&s, &n))
	require.False(t, s.Valid)
	require.False(t, n.Valid)

	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&s, &n))
	require.True(t, s.Valid)
	require.Equal(t, "x", s.String)
	require.True(t, n.Valid)
	require.EqualValues(t, 7, n.Int64)
}

func TestDriverNamedArgs(t *testing.T) {
	db := openSQL(t, tempDSN(t))

	_, err := db.Exec("CREATE TABLE users (name TEXT, age INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO users VALUES ('Alice', 42), ('Bob', 69)")
	require.NoError(t, err)

	var name string
	err = db.QueryRow("SELECT name FROM users WHERE age > :min ORDER BY age", sql.Named("min", 50)).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "Bob", name)
}

func TestDriverTimeRoundtrip(t *testing.T) {
	db := openSQL(t, tempDSN(t))

	_, err := db.Exec("CREATE TABLE events (name TEXT, at TIMESTAMP)")
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.UTC)
	_, err = db.Exec("INSERT INTO events VALUES (?, ?)", "deploy", at)
	require.NoError(t, err)

	var got time.Time
	require.NoError(t, db.QueryRow("SELECT at FROM events WHERE name = ?", "deploy").Scan(&got))
	require.True(t, got.Equal(at), "got %v, want %v", got, at)
}

func TestDriverPreparedStmtReuse(t *testing.T) {
	db := openSQL(t, tempDSN(t))

	_, err := db.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t VALUES (1), (2), (3)")
	require.NoError(t, err)

	stmt, err := db.Prepare("SELECT count(*) FROM t WHERE x > ?")
	require.NoError(t, err)
	defer stmt.Close()

	for threshold, want := range map[int]int{0: 3, 1: 2, 3: 0} {
		var count int
		require.NoError(t, stmt.QueryRow(threshold).Scan(&count))
		require.Equal(t, want, count, "threshold %d", threshold)
	}
}

func TestDriverTransactions(t *testing.T) {
	db := openSQL(t, tempDSN(t))

	_, err := db.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&count))
	require.Zero(t, count)

	tx, err = db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&count))
	require.Equal(t, 1, count)
}

func TestDriverContextCanceled(t *testing.T) {
	db := openSQL(t, tempDSN(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.ExecContext(ctx, "CREATE TABLE t (x INTEGER)")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDriverConnector(t *testing.T) {
	requireLib(t)

	connector, err := NewConnector(tempDSN(t), WithBusyTimeout(250))
	require.NoError(t, err)
	db := sql.OpenDB(connector)
	defer db.Close()

	require.NoError(t, db.Ping())
	_, err = db.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
}

func TestParseDSN(t *testing.T) {
	t.Run("plain path", func(t *testing.T) {
		cfg, err := parseDSN("some/file.db")
		require.NoError(t, err)
		require.Equal(t, "some/file.db", cfg.path)
		require.NotZero(t, cfg.options.flags&openReadWrite)
		require.NotZero(t, cfg.options.flags&openCreate)
	})

	t.Run("read-only mode", func(t *testing.T) {
		cfg, err := parseDSN("file.db?mode=ro")
		require.NoError(t, err)
		require.Equal(t, "file.db", cfg.path)
		require.NotZero(t, cfg.options.flags&openReadOnly)
		require.Zero(t, cfg.options.flags&openCreate)
	})

	t.Run("memory mode", func(t *testing.T) {
		cfg, err := parseDSN("ignored?mode=memory")
		require.NoError(t, err)
		require.NotZero(t, cfg.options.flags&openMemory)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := parseDSN("file.db?mode=bogus")
		require.Error(t, err)
	})

	t.Run("cache and mutex flags", func(t *testing.T) {
		cfg, err := parseDSN("file.db?cache=shared&nomutex=1")
		require.NoError(t, err)
		require.NotZero(t, cfg.options.flags&openSharedCache)
		require.NotZero(t, cfg.options.flags&openNoMutex)
	})

	t.Run("busy timeout", func(t *testing.T) {
		cfg, err := parseDSN("file.db?_busy_timeout=250")
		require.NoError(t, err)
		require.Equal(t, 250, cfg.busyTimeout)

		cfg, err = parseDSN("file.db?_busy_timeout=0")
		require.NoError(t, err)
		require.Equal(t, -1, cfg.busyTimeout)
	})

	t.Run("file uri passthrough", func(t *testing.T) {
		cfg, err := parseDSN("file:test.db?mode=memory&cache=shared")
		require.NoError(t, err)
		require.Equal(t, "file:test.db?mode=memory&cache=shared", cfg.path)
		require.NotZero(t, cfg.options.flags&openURI)
	})
}

type product struct {
	ID    uint
	Code  string
	Price uint
}

func TestGormIntegration(t *testing.T) {
	requireLib(t)

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqll",
		DSN:        tempDSN(t),
	}, &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&product{}))
	require.NoError(t, db.Create(&product{Code: "D42", Price: 100}).Error)

	var p product
	require.NoError(t, db.First(&p, "code = ?", "D42").Error)
	require.Equal(t, uint(100), p.Price)

	require.NoError(t, db.Model(&p).Update("Price", 200).Error)
	var updated product
	require.NoError(t, db.First(&updated, p.ID).Error)
	require.Equal(t, uint(200), updated.Price)

	require.NoError(t, db.Delete(&p).Error)
	err = db.First(&product{}, p.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
