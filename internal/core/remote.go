package core

import (
	"fmt"
	"os"

	"quantacore/internal/infra/remote/memory"
	"quantacore/internal/infra/remote/postgres"
	"quantacore/internal/infra/remote/sqlite"
)

// RemoteDriver identifies a concrete remote-store implementation.
type RemoteDriver string

const (
	RemoteMemory   RemoteDriver = "memory"   // in-process only (tests / dev)
	RemoteSQLite   RemoteDriver = "sqlite"   // embedded sqlite file
	RemotePostgres RemoteDriver = "postgres" // PostgreSQL server
)

// OpenRemoteStore selects a remote-store backend using environment variables.
// Defaults to memory when unset.
//
//	QUANTACORE_REMOTE_DRIVER: memory|sqlite|postgres (default memory)
//	QUANTACORE_SQLITE_PATH: path to sqlite file (default ./quantacore.db)
//	QUANTACORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenRemoteStore() (RemoteStore, error) {
	driver := os.Getenv("QUANTACORE_REMOTE_DRIVER")
	if driver == "" {
		driver = string(RemoteMemory)
	}
	switch RemoteDriver(driver) {
	case RemoteMemory:
		return memory.NewStore(), nil
	case RemoteSQLite:
		return sqlite.NewStore(os.Getenv("QUANTACORE_SQLITE_PATH"))
	case RemotePostgres:
		return postgres.NewStore(os.Getenv("QUANTACORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown remote driver %s", driver)
	}
}
