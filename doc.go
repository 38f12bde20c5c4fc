// Package sqll provides low level access to an embedded SQL engine through
// its native C library, loaded at runtime without cgo.
//
// The core types are [Conn], [Stmt] and [Row]: open a connection, prepare a
// statement, bind parameters, step through result rows. Statements co-own
// the connection's native resource, so closing the connection while
// statements are live is safe; the resource is released when the last owner
// closes.
//
// The package also registers a database/sql driver under the name "sqll":
//
//	db, err := sql.Open("sqll", "file.db")
//
// The engine library is located through the SQLL_LIBRARY_PATH environment
// variable, or by probing the platform's well known library names.
package sqll
