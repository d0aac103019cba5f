//go:build sqlite_cgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // native SQLite driver
	_ "modernc.org/sqlite"          // pure-Go SQLite driver
)

// sqliteDriver names a database/sql driver and the backend it represents.
type sqliteDriver struct {
	backend    Backend
	driverName string
}

// sqliteDrivers lists the SQLite engines compiled into this build, in probe
// order: the portable pure-Go engine first, then the native binding for
// higher throughput when the portable probe fails.
var sqliteDrivers = []sqliteDriver{
	{backend: BackendSQLite, driverName: "sqlite"},
	{backend: BackendSQLiteCGO, driverName: "sqlite3"},
}
