package audit

import (
	"context"
	"database/sql"
	"strings"
	"time"

	logx "pushrelay/pkg/logx"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    at        TEXT NOT NULL,
    event     TEXT NOT NULL,
    path      TEXT NOT NULL,
    recipient TEXT,
    address   TEXT,
    total     INTEGER NOT NULL DEFAULT 0,
    success   INTEGER NOT NULL DEFAULT 0,
    invalid   INTEGER NOT NULL DEFAULT 0,
    transient INTEGER NOT NULL DEFAULT 0,
    other     INTEGER NOT NULL DEFAULT 0,
    took_ms   INTEGER NOT NULL DEFAULT 0,
    err       TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_at ON audit_log(at);
`

func openSQLite(db *sql.DB, log logx.Logger) (Store, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

// Close is a no-op: the database handle belongs to the queue store.
func (s *sqliteStore) Close() error { return nil }

func (s *sqliteStore) Append(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(at, event, path, recipient, address, total, success, invalid, transient, other, took_ms, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Event, e.Path,
		nullStr(e.Recipient), nullStr(e.Address),
		e.Total, e.Success, e.Invalid, e.Transient, e.Other,
		e.TookMS, nullStr(e.Error),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
