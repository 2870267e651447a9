package storage

import (
	"errors"
	"strings"

	logx "cronkeep/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (MarkerStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "":
		return nil, errors.New("storage.driver is required")
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
