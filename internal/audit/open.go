package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	logx "pushrelay/pkg/logx"
)

// Store is the audit trail persistence API.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Open initializes the configured audit store. The sqlite driver writes
// into db, which the caller owns; Close is a no-op for it.
// It returns (nil, nil) if auditing is disabled.
func Open(cfg Config, db *sql.DB, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		if db == nil {
			return nil, errors.New("audit.driver sqlite requires a sqlite queue store")
		}
		return openSQLite(db, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
