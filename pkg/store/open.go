package store

import (
	"github.com/pkg/errors"
)

const (
	// DriverMemory keeps packages in process memory
	DriverMemory = "memory"
	// DriverSQLite keeps packages in a sqlite file
	DriverSQLite = "sqlite"
)

// Open builds the store named by driver
func Open(driver string, path string, policy RetentionPolicy) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(policy), nil
	case DriverSQLite:
		if path == "" {
			return nil, errors.New("sqlite store requires a path")
		}
		return OpenSQLite(path, policy)
	}
	return nil, errors.Errorf("unknown store driver %q", driver)
}
