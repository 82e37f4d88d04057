package storage

import (
	"errors"
	"strings"

	logx "phrasecron/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}

	switch driver {
	case "file":
		return openFile(cfg, log.With(logx.String("comp", "storage.file")))
	case "sqlite":
		return openSQLite(cfg, log.With(logx.String("comp", "storage.sqlite")))
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
