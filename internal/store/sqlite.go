package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"gdsim/internal/domain"
)

// SQLiteStore keeps the snapshot as a row keyed by name.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

func NewSQLiteStore(dsn string, key string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite snapshot store: empty dsn")
	}
	if key == "" {
		key = DefaultKey
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite snapshot store: open")
	}
	s := &SQLiteStore{db: db, key: key}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		  name TEXT PRIMARY KEY,
		  payload TEXT NOT NULL,
		  saved_at_ms INTEGER NOT NULL
		);`); err != nil {
		return errors.Wrap(err, "sqlite snapshot store: migrate")
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, payload, saved_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			saved_at_ms = excluded.saved_at_ms
	`, s.key, string(payload), savedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite snapshot store: upsert")
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE name = ?`, s.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, errors.Wrap(err, "sqlite snapshot store: load")
	}
	snapshot, ok := decodeSnapshot([]byte(payload))
	return snapshot, ok, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, s.key); err != nil {
		return errors.Wrap(err, "sqlite snapshot store: clear")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SQLiteDSNForFile builds a DSN for a database file.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite snapshot store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
