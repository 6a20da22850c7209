package queue

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "pushrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// defaultPollInterval bounds staleness for records inserted by external
// producers writing to the database file directly. In-process Puts wake the
// subscription immediately.
const defaultPollInterval = 2 * time.Second

// Config configures the sqlite driver.
type Config struct {
	Path         string
	BusyTimeout  time.Duration // 0 means default
	PollInterval time.Duration // 0 means default
}

// SQLiteStore is the durable store driver. The subscription feed is a
// seq-cursor poll over the records table, woken early by in-process writes.
type SQLiteStore struct {
	db  *sql.DB
	log logx.Logger

	poll time.Duration

	mu     sync.Mutex
	wakes  map[uint64]chan struct{}
	nextID uint64
	closed bool
}

func OpenSQLite(cfg Config, log logx.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	st := &SQLiteStore{db: db, log: log, poll: poll, wakes: map[uint64]chan struct{}{}}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// DB exposes the underlying handle so the address directory and the audit
// trail can share one database file (and its single-writer pool).
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (*Record, error) {
	path = CleanPath(path)
	var payload string
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, status FROM records WHERE path = ?`, path,
	).Scan(&payload, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(path, payload, status)
}

func (s *SQLiteStore) Put(ctx context.Context, path string, p Payload) error {
	path = CleanPath(path)
	status := p.Status
	p.Status = "" // status column is authoritative
	body, err := json.Marshal(&p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(path, payload, status, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(path) DO UPDATE SET payload=excluded.payload, status=excluded.status`,
		path, string(body), string(status), time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	s.wakeAll()
	return nil
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, path string, fields map[string]any) error {
	path = CleanPath(path)

	if len(fields) == 1 {
		if v, ok := fields["status"]; ok {
			// The claim write: one targeted column update, no payload rewrite.
			str, err := statusString(v)
			if err != nil {
				return fmt.Errorf("update %s: %w", path, err)
			}
			res, err := s.db.ExecContext(ctx, `UPDATE records SET status = ? WHERE path = ?`, str, path)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return fmt.Errorf("update %s: no such record", path)
			}
			return nil
		}
	}

	// General partial update: patch the payload JSON.
	var payload, status string
	err := s.db.QueryRowContext(ctx, `SELECT payload, status FROM records WHERE path = ?`, path).Scan(&payload, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s: no such record", path)
	}
	if err != nil {
		return err
	}
	var p Payload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("update %s: stored payload: %w", path, err)
	}
	for k, v := range fields {
		switch k {
		case "status":
			str, err := statusString(v)
			if err != nil {
				return fmt.Errorf("update %s: %w", path, err)
			}
			status = str
		case "message", "title", "link":
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("update %s: %s must be a string", path, k)
			}
			switch k {
			case "message":
				p.Message = str
			case "title":
				p.Title = str
			case "link":
				p.Link = str
			}
		default:
			return fmt.Errorf("update %s: unknown field %q", path, k)
		}
	}
	body, err := json.Marshal(&p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE records SET payload = ?, status = ? WHERE path = ?`, string(body), status, path)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	path = CleanPath(path)
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, path)
	return err
}

func (s *SQLiteStore) Children(ctx context.Context, path string) ([]string, error) {
	path = CleanPath(path)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM records WHERE path LIKE ? ESCAPE '\' ORDER BY seq`, likeChildren(path),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var keys []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		key, _, ok := ChildKey(path, p)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) SubscribeChildAdded(ctx context.Context, path string) (<-chan ChildEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path = CleanPath(path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	wake := make(chan struct{}, 1)
	id := s.nextID
	s.nextID++
	s.wakes[id] = wake
	s.mu.Unlock()

	f := newFeed(0)
	done := make(chan struct{})
	go s.pollLoop(path, f, wake, done)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.wakes, id)
			s.mu.Unlock()
			close(done)
			f.close()
		})
	}
	return f.out, cancel, nil
}

func (s *SQLiteStore) pollLoop(parent string, f *feed, wake <-chan struct{}, done <-chan struct{}) {
	var cursor int64
	announced := map[string]bool{}
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		next, err := s.scanNew(parent, cursor, announced, f)
		if err != nil {
			if !s.log.IsZero() && !s.isClosed() {
				s.log.Warn("queue poll failed", logx.String("path", parent), logx.Err(err))
			}
		} else {
			cursor = next
		}

		select {
		case <-done:
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (s *SQLiteStore) scanNew(parent string, cursor int64, announced map[string]bool, f *feed) (int64, error) {
	rows, err := s.db.Query(
		`SELECT seq, path, payload, status FROM records
		 WHERE seq > ? AND path LIKE ? ESCAPE '\' ORDER BY seq`,
		cursor, likeChildren(parent),
	)
	if err != nil {
		return cursor, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq             int64
			path, body, sta string
		)
		if err := rows.Scan(&seq, &path, &body, &sta); err != nil {
			return cursor, err
		}
		cursor = seq

		key, leaf, ok := ChildKey(parent, path)
		if !ok {
			continue
		}
		if leaf {
			rec, err := decodeRecord(path, body, sta)
			if err != nil {
				if !s.log.IsZero() {
					s.log.Warn("queue row undecodable", logx.String("path", path), logx.Err(err))
				}
				continue
			}
			f.emit(ChildEvent{Parent: parent, Key: key, Record: rec})
			continue
		}
		if announced[key] {
			continue
		}
		announced[key] = true
		f.emit(ChildEvent{Parent: parent, Key: key})
	}
	return cursor, rows.Err()
}

func (s *SQLiteStore) wakeAll() {
	s.mu.Lock()
	for _, ch := range s.wakes {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func decodeRecord(path, body, status string) (*Record, error) {
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &Record{Path: path, Payload: p}, nil
}

func statusString(v any) (string, error) {
	switch t := v.(type) {
	case Status:
		return string(t), nil
	case string:
		return t, nil
	default:
		return "", errors.New("status must be a string")
	}
}

// likeChildren builds a LIKE pattern matching strict descendants of path,
// escaping the LIKE metacharacters that may appear in path segments.
func likeChildren(path string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(path)
	if path == "/" {
		return esc + "%"
	}
	return esc + "/%"
}
