// Package store persists the single resumable session snapshot.
package store

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gdsim/internal/domain"
	"gdsim/internal/ports"
)

// DefaultKey names the snapshot record in every backend.
const DefaultKey = "gd_session"

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Store is a snapshot store that owns resources.
type Store interface {
	ports.SnapshotStore
	io.Closer
}

// Config selects and configures a backend.
type Config struct {
	Driver    string
	Path      string
	RedisAddr string
	Key       string
	// TTL is applied by backends that expire records natively.
	TTL time.Duration
}

// Open builds the backend named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = DefaultKey
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverFile:
		return NewFileStore(cfg.Path)
	case DriverSQLite:
		dsn, err := SQLiteDSNForFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn, key)
	case DriverRedis:
		return NewRedisStore(cfg.RedisAddr, key, cfg.TTL)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown snapshot store driver %q", cfg.Driver)
	}
}

func encodeSnapshot(snapshot domain.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return payload, nil
}

// decodeSnapshot treats an unreadable or id-less record as absent.
func decodeSnapshot(payload []byte) (domain.Snapshot, bool) {
	var snapshot domain.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.Snapshot{}, false
	}
	if strings.TrimSpace(snapshot.SessionID) == "" {
		return domain.Snapshot{}, false
	}
	return snapshot, true
}
