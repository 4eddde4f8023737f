// Package sqlitedriver selects the SQLite driver at build time.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite, no CGO required
//   - -tags cgo_sqlite (with CGO_ENABLED=1): mattn/go-sqlite3
//
// The registered driver name differs between the two, so always open
// databases through Open() rather than sql.Open().
package sqlitedriver

import (
	"database/sql"
)

// DriverName returns the registered SQL driver name.
func DriverName() string {
	return driverName
}

// DriverType identifies the underlying implementation, "purego" or "cgo".
func DriverType() string {
	return driverType
}

// IsCGO reports whether the CGO implementation is compiled in.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database with the selected driver.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open(path + "?mode=ro")
}

// Info describes the compiled-in SQLite configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns the compiled-in SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
