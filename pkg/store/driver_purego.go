//go:build !sqlite_cgo

package store

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// sqliteDriver names a database/sql driver and the backend it represents.
type sqliteDriver struct {
	backend    Backend
	driverName string
}

// sqliteDrivers lists the SQLite engines compiled into this build, in probe
// order. The default build carries only the portable pure-Go engine; the
// in-memory store remains the final fallback in Open.
var sqliteDrivers = []sqliteDriver{
	{backend: BackendSQLite, driverName: "sqlite"},
}
