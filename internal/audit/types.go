package audit

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("audit disabled")

// Config configures the delivery audit trail.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": table in the relay's SQLite database
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver string
	Path   string // file driver only
}

// Entry records one engine outcome.
// Keep it compact and schema-stable.
type Entry struct {
	At        time.Time `json:"at"`
	Event     string    `json:"event"`
	Path      string    `json:"path"`
	Recipient string    `json:"recipient,omitempty"`
	Address   string    `json:"address,omitempty"`
	Total     int       `json:"total,omitempty"`
	Success   int       `json:"success,omitempty"`
	Invalid   int       `json:"invalid,omitempty"`
	Transient int       `json:"transient,omitempty"`
	Other     int       `json:"other,omitempty"`
	TookMS    int64     `json:"took_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
}
