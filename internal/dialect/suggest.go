package dialect

// ForServerVersion picks the newest PostgreSQL dialect that supports a server
// reporting server_version_num n. Servers newer than 9.5 get
// PostgreSQL95Dialect, the newest one the family check accepts.
func ForServerVersion(n int) string {
	var name string
	switch {
	case n >= 90500:
		name = "PostgreSQL95Dialect"
	case n >= 90400:
		name = "PostgreSQL94Dialect"
	case n >= 90300:
		name = "PostgreSQL93Dialect"
	case n >= 90200:
		name = "PostgreSQL92Dialect"
	case n >= 90100:
		name = "PostgreSQL91Dialect"
	case n >= 90000:
		name = "PostgreSQL9Dialect"
	case n >= 80200:
		name = "PostgreSQL82Dialect"
	default:
		name = "PostgreSQL81Dialect"
	}
	return Namespace + "." + name
}
