package directory

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteDirectory stores address sets in the relay's shared database.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLite prepares the addresses table on the given handle. The handle is
// shared with the queue store; the directory does not own or close it.
func NewSQLite(db *sql.DB) (*SQLiteDirectory, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS addresses (
		recipient TEXT NOT NULL,
		token     TEXT NOT NULL,
		added_at  TEXT NOT NULL,
		PRIMARY KEY (recipient, token)
	)`)
	if err != nil {
		return nil, err
	}
	return &SQLiteDirectory{db: db}, nil
}

func (d *SQLiteDirectory) Addresses(ctx context.Context, recipient string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT token FROM addresses WHERE recipient = ? ORDER BY added_at, token`, recipient,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var toks []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		toks = append(toks, t)
	}
	return toks, rows.Err()
}

func (d *SQLiteDirectory) AddAddress(ctx context.Context, recipient, token string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO addresses(recipient, token, added_at) VALUES(?,?,?)
		 ON CONFLICT(recipient, token) DO NOTHING`,
		recipient, token, time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (d *SQLiteDirectory) RemoveAddress(ctx context.Context, recipient, token string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM addresses WHERE recipient = ? AND token = ?`, recipient, token,
	)
	return err
}
