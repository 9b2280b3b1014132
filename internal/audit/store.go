package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS enforcements (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         TEXT    NOT NULL,
	event      TEXT    NOT NULL,
	target_uid INTEGER NOT NULL,
	tag        TEXT    NOT NULL,
	body       TEXT    NOT NULL,
	prev_hash  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS enforcements_target ON enforcements(target_uid);
`

// Store is a SQLite-backed journal. Each row keeps the marshaled entry in
// body, chained by prev_hash exactly like the JSONL log.
type Store struct {
	db       *sql.DB
	prevHash string
	mu       sync.Mutex
}

// OpenStore opens (or creates) a SQLite journal.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	prevHash := GenesisHash
	var body string
	err = db.QueryRow(`SELECT body FROM enforcements ORDER BY id DESC LIMIT 1`).Scan(&body)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("audit: read chain tail: %w", err)
	default:
		prevHash = HashLine([]byte(body))
	}
	return &Store{db: db, prevHash: prevHash}, nil
}

// Record inserts entry with hash chaining.
func (s *Store) Record(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = s.prevHash

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO enforcements (ts, event, target_uid, tag, body, prev_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Event, entry.TargetUID, entry.Tag, string(body), entry.PrevHash)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}

	s.prevHash = HashLine(body)
	return nil
}

// bodies returns every stored entry body in insertion order.
func (s *Store) bodies() ([][]byte, error) {
	rows, err := s.db.Query(`SELECT body FROM enforcements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		out = append(out, []byte(body))
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
