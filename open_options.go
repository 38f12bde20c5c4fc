package sqll

// OpenOptions customizes how a database connection is opened.
//
// # Thread safety
//
// The engine's threading behavior is configuration, not a static guarantee.
// A connection is shareable across goroutines only when the linked library
// was built thread-safe and the connection was not opened with NoMutex; the
// result is recorded on the connection at open time and reported by
// [Conn.Shareable]. When ThreadSafe reports false the engine was built with
// no locking at all and even distinct connections must not be used
// concurrently, process-wide.
//
// NewOpenOptions enables extended result codes by default so error codes
// carry their full family information; use EmptyOpenOptions to start from a
// clean slate.
type OpenOptions struct {
	flags int32
}

// NewOpenOptions returns options with extended result codes enabled.
func NewOpenOptions() *OpenOptions {
	return &OpenOptions{flags: openExResCode}
}

// EmptyOpenOptions returns options with no flags set.
func EmptyOpenOptions() *OpenOptions {
	return &OpenOptions{}
}

// ReadOnly opens the database in read-only mode. The database must already
// exist.
func (o *OpenOptions) ReadOnly() *OpenOptions {
	o.flags |= openReadOnly
	return o
}

// ReadWrite opens the database for reading and writing, falling back to
// read-only if the file is write protected.
func (o *OpenOptions) ReadWrite() *OpenOptions {
	o.flags |= openReadWrite
	return o
}

// Create creates the database if it does not already exist. A mode option
// like ReadWrite must also be set or the open reports MISUSE.
func (o *OpenOptions) Create() *OpenOptions {
	o.flags |= openCreate
	return o
}

// URI allows the path to be interpreted as a file: URI.
func (o *OpenOptions) URI() *OpenOptions {
	o.flags |= openURI
	return o
}

// Memory opens the database in memory; the path only names the database for
// cache sharing purposes.
func (o *OpenOptions) Memory() *OpenOptions {
	o.flags |= openMemory
	return o
}

// NoMutex opens the connection in the multi-thread threading mode: the
// engine skips per-connection locking, so the connection and its statements
// must be confined to one goroutine at a time.
func (o *OpenOptions) NoMutex() *OpenOptions {
	o.flags |= openNoMutex
	return o
}

// FullMutex opens the connection in the serialized threading mode: the
// engine's own mutexes make the connection safe to use from multiple
// goroutines.
func (o *OpenOptions) FullMutex() *OpenOptions {
	o.flags |= openFullMutex
	return o
}

// SharedCache enables shared-cache mode for this connection. Builds of the
// engine without shared-cache support treat this as a no-op.
func (o *OpenOptions) SharedCache() *OpenOptions {
	o.flags |= openSharedCache
	return o
}

// PrivateCache disables shared-cache mode for this connection.
func (o *OpenOptions) PrivateCache() *OpenOptions {
	o.flags |= openPrivateCache
	return o
}

// NoFollow refuses to open a path containing a symbolic link.
func (o *OpenOptions) NoFollow() *OpenOptions {
	o.flags |= openNoFollow
	return o
}

// ExtendedResultCodes puts the connection in extended result code mode.
// Already set by NewOpenOptions.
func (o *OpenOptions) ExtendedResultCodes() *OpenOptions {
	o.flags |= openExResCode
	return o
}

// Open opens a database at the given filesystem path with the configured
// flags. Pass ":memory:" or use OpenInMemory for an in-memory database.
func (o *OpenOptions) Open(path string) (*Conn, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	db, err := sqlite3_open_v2(path, o.flags)
	if err != nil {
		return nil, err
	}

	// The connection may be shared only when the engine carries internal
	// mutexes and they were not disabled for this connection.
	shareable := sqlite3_threadsafe() && o.flags&openNoMutex == 0

	return &Conn{res: newConnRes(db, shareable)}, nil
}

// OpenInMemory opens an in-memory database with the configured flags.
func (o *OpenOptions) OpenInMemory() (*Conn, error) {
	return o.Open(":memory:")
}

// ThreadSafe reports whether the linked engine was built with thread safety
// at all. When false, no two connections may be used concurrently from
// different goroutines anywhere in the process.
func ThreadSafe() (bool, error) {
	if err := Initialize(); err != nil {
		return false, err
	}
	return sqlite3_threadsafe(), nil
}
