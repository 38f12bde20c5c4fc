package sqll

// Version returns the version string of the linked engine library, such as
// "3.46.1".
func Version() (string, error) {
	if err := Initialize(); err != nil {
		return "", err
	}
	return copyCString(c_sqlite3_libversion()), nil
}

// VersionNumber returns the version of the linked engine library as a single
// integer, such as 3046001.
func VersionNumber() (int, error) {
	if err := Initialize(); err != nil {
		return 0, err
	}
	return int(c_sqlite3_libversion_number()), nil
}
