// Library loading for the SQLite shared library.
//
// The library is resolved at runtime rather than linked at build time, which
// keeps the package free of cgo and lets a single binary run against
// whichever SQLite the host system provides. Resolution order:
//
//  1. The SQLL_LIBRARY_PATH environment variable, when set, must point at
//     the shared library file and is used as-is.
//  2. The platform's well-known library names, tried in order through the
//     system loader's usual search path.
package sqll

import (
	"fmt"
	"os"
	"runtime"
)

// libraryEnv overrides library resolution when set.
const libraryEnv = "SQLL_LIBRARY_PATH"

// libraryCandidates returns the well-known shared library names for the
// current platform, most specific first.
func libraryCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"libsqlite3.dylib",
			"/usr/lib/libsqlite3.dylib",
		}
	case "windows":
		return []string{
			"sqlite3.dll",
			"winsqlite3.dll",
		}
	default:
		return []string{
			"libsqlite3.so.0",
			"libsqlite3.so",
		}
	}
}

// loadLibrary resolves and opens the SQLite shared library, returning the
// loader handle used to register the extern methods.
func loadLibrary() (uintptr, error) {
	if path := os.Getenv(libraryEnv); path != "" {
		handle, err := openLibrary(path)
		if err != nil {
			return 0, fmt.Errorf("sqll: load %s from %s: %w", path, libraryEnv, err)
		}
		return handle, nil
	}

	var firstErr error
	for _, name := range libraryCandidates() {
		handle, err := openLibrary(name)
		if err == nil {
			return handle, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, fmt.Errorf("sqll: unable to load the sqlite3 library (tried %v, set %s to override): %w",
		libraryCandidates(), libraryEnv, firstErr)
}
