package sqll

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// define all package level errors here
var (
	ErrDriverStmtClosed = errors.New("sqll: driver statement closed")
	ErrDriverTxDone     = errors.New("sqll: transaction done")
)

// DefaultBusyTimeout is applied to driver connections unless the DSN or
// connector disables or overrides it.
const DefaultBusyTimeout = 5000 // milliseconds

type sqlDriver struct{}

// sqlConn adapts Conn to driver.Conn. database/sql may use one connection
// from many goroutines over time, so the adapter serializes with its own
// mutex instead of relying on the engine's threading mode.
type sqlConn struct {
	conn *Conn

	mu          sync.Mutex
	closed      bool
	busyTimeout int
}

type sqlStmt struct {
	conn   *sqlConn
	stmt   *Stmt
	closed bool
}

type sqlRows struct {
	conn      *sqlConn
	stmt      *Stmt
	owned     bool // finalize the statement on Close, or just reset it
	columns   []string
	decltypes []string
	closed    bool
}

type sqlResult struct {
	lastInsertID int64
	rowsAffected int64
}

type sqlTx struct {
	conn *sqlConn
	done bool
}

// register driver
func init() {
	sql.Register("sqll", &sqlDriver{})
}

// Ensure the required interfaces are implemented.
var (
	_ driver.Conn               = (*sqlConn)(nil)
	_ driver.ConnPrepareContext = (*sqlConn)(nil)
	_ driver.ExecerContext      = (*sqlConn)(nil)
	_ driver.QueryerContext     = (*sqlConn)(nil)
	_ driver.Pinger             = (*sqlConn)(nil)
	_ driver.ConnBeginTx        = (*sqlConn)(nil)
	_ driver.Stmt               = (*sqlStmt)(nil)
	_ driver.StmtExecContext    = (*sqlStmt)(nil)
	_ driver.StmtQueryContext   = (*sqlStmt)(nil)
	_ driver.Rows               = (*sqlRows)(nil)
	_ driver.Result             = (*sqlResult)(nil)
	_ driver.Tx                 = (*sqlTx)(nil)
	_ driver.Connector          = (*Connector)(nil)
)

// Implement sql.Driver methods

func (d *sqlDriver) Open(dsn string) (driver.Conn, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return openDriverConn(cfg)
}

// dsnConfig is the parsed form of a driver DSN.
type dsnConfig struct {
	path        string
	options     *OpenOptions
	busyTimeout int // 0 = default, -1 = disabled
}

// parseDSN supports the format:
//
//	<path>[?mode=ro|rw|rwc|memory&cache=shared|private&nomutex=1&fullmutex=1&_busy_timeout=<ms>]
//
// A path starting with "file:" is passed through as a URI.
func parseDSN(dsn string) (dsnConfig, error) {
	cfg := dsnConfig{path: dsn, options: NewOpenOptions()}

	rawQuery := ""
	if qMark := strings.IndexByte(dsn, '?'); qMark >= 0 {
		cfg.path = dsn[:qMark]
		rawQuery = dsn[qMark+1:]
	}

	if strings.HasPrefix(cfg.path, "file:") {
		cfg.options.URI()
		// URI query parameters belong to the engine; pass them through.
		cfg.path = dsn
		rawQuery = ""
	}

	mode := "rwc"
	if rawQuery != "" {
		vals, err := url.ParseQuery(rawQuery)
		if err != nil {
			return dsnConfig{}, fmt.Errorf("sqll: parse dsn: %w", err)
		}
		if v := vals.Get("mode"); v != "" {
			mode = v
		}
		switch vals.Get("cache") {
		case "shared":
			cfg.options.SharedCache()
		case "private":
			cfg.options.PrivateCache()
		}
		if isTruthy(vals.Get("nomutex")) {
			cfg.options.NoMutex()
		}
		if isTruthy(vals.Get("fullmutex")) {
			cfg.options.FullMutex()
		}
		if v := vals.Get("_busy_timeout"); v != "" {
			var timeout int
			if _, err := fmt.Sscanf(v, "%d", &timeout); err == nil {
				if timeout <= 0 {
					cfg.busyTimeout = -1
				} else {
					cfg.busyTimeout = timeout
				}
			}
		}
	}

	switch mode {
	case "ro":
		cfg.options.ReadOnly()
	case "rw":
		cfg.options.ReadWrite()
	case "rwc":
		cfg.options.ReadWrite().Create()
	case "memory":
		cfg.options.ReadWrite().Create().Memory()
	default:
		return dsnConfig{}, fmt.Errorf("sqll: unknown mode %q in dsn", mode)
	}

	return cfg, nil
}

func isTruthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

func openDriverConn(cfg dsnConfig) (driver.Conn, error) {
	conn, err := cfg.options.Open(cfg.path)
	if err != nil {
		return nil, err
	}
	timeout := cfg.busyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	} else if timeout < 0 {
		timeout = 0
	}
	if timeout > 0 {
		if err := conn.SetBusyTimeout(timeout); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &sqlConn{conn: conn, busyTimeout: timeout}, nil
}

// --- driver.Conn and friends ---

func (c *sqlConn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrConnClosed
	}
	return nil
}

func (c *sqlConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *sqlConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// database/sql prepares statements it intends to reuse, so hint the
	// engine to cache the plan.
	stmt, err := c.conn.PrepareWith(query, Persistent)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{conn: c, stmt: stmt}, nil
}

func (c *sqlConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *sqlConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *sqlConn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if _, err := c.ExecContext(ctx, "BEGIN", nil); err != nil {
		return nil, err
	}
	return &sqlTx{conn: c}, nil
}

func (c *sqlConn) Ping(ctx context.Context) error {
	rows, err := c.QueryContext(ctx, "SELECT 1", nil)
	if err != nil {
		return err
	}
	return rows.Close()
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(args) == 0 {
		// Multi-statement batches are supported only without parameters.
		if err := c.conn.Exec(query); err != nil {
			return nil, err
		}
		return c.result()
	}

	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	if err := bindNamedArgs(stmt, args); err != nil {
		return nil, err
	}
	if err := drain(ctx, stmt); err != nil {
		return nil, err
	}
	return c.result()
}

func (c *sqlConn) result() (driver.Result, error) {
	affected, err := c.conn.Changes()
	if err != nil {
		return nil, err
	}
	rowid, err := c.conn.LastInsertRowID()
	if err != nil {
		return nil, err
	}
	return &sqlResult{lastInsertID: rowid, rowsAffected: int64(affected)}, nil
}

func (c *sqlConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	if err := bindNamedArgs(stmt, args); err != nil {
		stmt.Close()
		return nil, err
	}
	// Leave the cursor before the first row.
	return &sqlRows{conn: c, stmt: stmt, owned: true}, nil
}

// SetBusyTimeout adjusts the engine busy timeout for this connection, in
// milliseconds. Zero disables the handler.
func (c *sqlConn) SetBusyTimeout(ms int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms < 0 {
		ms = 0
	}
	if err := c.conn.SetBusyTimeout(ms); err != nil {
		return err
	}
	c.busyTimeout = ms
	return nil
}

// drain runs a bound statement to completion, honoring context between
// steps. The native step itself cannot be interrupted.
func drain(ctx context.Context, stmt *Stmt) error {
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		state, err := stmt.Step()
		if err != nil {
			return err
		}
		if state == StateDone {
			return nil
		}
	}
}

// --- Connector ---

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithBusyTimeout sets the busy timeout in milliseconds. Use 0 to disable
// the busy handler, -1 to keep the default.
func WithBusyTimeout(ms int) ConnectorOption {
	return func(c *Connector) {
		c.busyTimeout = ms
	}
}

// Connector implements driver.Connector for programmatic configuration.
type Connector struct {
	dsn         string
	busyTimeout int // -1 = default, 0 = disabled, >0 = custom
}

// NewConnector creates a Connector for the given DSN.
func NewConnector(dsn string, opts ...ConnectorOption) (*Connector, error) {
	c := &Connector{dsn: dsn, busyTimeout: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	cfg, err := parseDSN(c.dsn)
	if err != nil {
		return nil, err
	}
	if c.busyTimeout >= 0 {
		if c.busyTimeout == 0 {
			cfg.busyTimeout = -1
		} else {
			cfg.busyTimeout = c.busyTimeout
		}
	}
	return openDriverConn(cfg)
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &sqlDriver{}
}

// --- driver.Stmt ---

func (s *sqlStmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stmt.Close()
}

func (s *sqlStmt) NumInput() int {
	return s.stmt.ParameterCount()
}

func (s *sqlStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), ordinalArgs(args))
}

func (s *sqlStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrDriverStmtClosed
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := s.rebind(args); err != nil {
		return nil, err
	}
	if err := drain(ctx, s.stmt); err != nil {
		s.stmt.Reset()
		return nil, err
	}
	if err := s.stmt.Reset(); err != nil {
		return nil, err
	}
	return s.conn.result()
}

func (s *sqlStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), ordinalArgs(args))
}

func (s *sqlStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrDriverStmtClosed
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := s.rebind(args); err != nil {
		return nil, err
	}
	return &sqlRows{conn: s.conn, stmt: s.stmt}, nil
}

// rebind prepares a persistent statement for another execution.
func (s *sqlStmt) rebind(args []driver.NamedValue) error {
	if err := s.stmt.Reset(); err != nil {
		return err
	}
	if err := s.stmt.ClearBindings(); err != nil {
		return err
	}
	return bindNamedArgs(s.stmt, args)
}

func ordinalArgs(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// bindNamedArgs binds ordered and named values to a statement. Named values
// resolve through the statement's declared parameter names, trying the
// engine's prefix characters in turn.
func bindNamedArgs(stmt *Stmt, args []driver.NamedValue) error {
	for idx, nv := range args {
		pos := idx + 1
		if nv.Name != "" {
			pos = 0
			for _, prefix := range []string{":", "@", "$"} {
				if p := stmt.ParameterIndex(prefix + nv.Name); p > 0 {
					pos = p
					break
				}
			}
			if pos == 0 {
				return fmt.Errorf("sqll: unknown named parameter %q", nv.Name)
			}
		} else if nv.Ordinal > 0 {
			pos = nv.Ordinal
		}
		if err := bindDriverValue(stmt, pos, nv.Value); err != nil {
			return err
		}
	}
	return nil
}

func bindDriverValue(stmt *Stmt, pos int, v any) error {
	switch x := v.(type) {
	case time.Time:
		return stmt.Bind(pos, x.Format(time.RFC3339Nano))
	case nil, bool, int64, float64, string, []byte:
		return stmt.Bind(pos, x)
	default:
		return stmt.Bind(pos, fmt.Sprint(v))
	}
}

// --- driver.Rows ---

func (r *sqlRows) Columns() []string {
	if r.columns != nil {
		return r.columns
	}
	n := r.stmt.ColumnCount()
	names := make([]string, n)
	decltypes := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = r.stmt.ColumnName(i)
		decltypes[i] = r.stmt.ColumnDeclType(i)
	}
	r.columns = names
	r.decltypes = decltypes
	return r.columns
}

func (r *sqlRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.owned {
		return r.stmt.Close()
	}
	// The statement belongs to a prepared driver.Stmt; put it back in the
	// ready state instead of finalizing.
	return r.stmt.Reset()
}

func (r *sqlRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	// Ensure decltypes are populated
	_ = r.Columns()

	row, err := r.stmt.Next()
	if err != nil {
		return err
	}
	if row == nil {
		return io.EOF
	}

	n := len(r.columns)
	if len(dest) != n {
		return fmt.Errorf("sqll: expected %d dests, got %d", n, len(dest))
	}
	for i := 0; i < n; i++ {
		switch row.Type(i) {
		case TypeNull:
			dest[i] = nil
		case TypeInteger:
			v, err := row.Int64(i)
			if err != nil {
				return err
			}
			dest[i] = v
		case TypeFloat:
			v, err := row.Float64(i)
			if err != nil {
				return err
			}
			dest[i] = v
		case TypeText:
			text, err := row.Text(i)
			if err != nil {
				return err
			}
			if i < len(r.decltypes) && isTimeColumn(r.decltypes[i]) {
				if t, err := parseTimeString(text); err == nil {
					dest[i] = t
					continue
				}
			}
			dest[i] = text
		case TypeBlob:
			v, err := row.Bytes(i)
			if err != nil {
				return err
			}
			dest[i] = v
		default:
			dest[i] = nil
		}
	}
	return nil
}

// --- driver.Result ---

func (r *sqlResult) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

func (r *sqlResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- driver.Tx ---

func (tx *sqlTx) Commit() error {
	if tx.done {
		return ErrDriverTxDone
	}
	tx.done = true
	_, err := tx.conn.ExecContext(context.Background(), "COMMIT", nil)
	return err
}

func (tx *sqlTx) Rollback() error {
	if tx.done {
		return ErrDriverTxDone
	}
	tx.done = true
	_, err := tx.conn.ExecContext(context.Background(), "ROLLBACK", nil)
	return err
}

// isTimeColumn checks whether the declared column type indicates a time
// value, matching the convention of the common Go drivers for this engine.
func isTimeColumn(decltype string) bool {
	switch strings.ToUpper(decltype) {
	case "TIMESTAMP", "DATETIME", "DATE":
		return true
	default:
		return false
	}
}

// timestampFormats are the timestamp layouts recognized when decoding a
// time column, most specific first.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
