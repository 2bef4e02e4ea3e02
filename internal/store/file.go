package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"gdsim/internal/domain"
)

// FileStore keeps the snapshot as a JSON document. Writes go through a
// temporary file and a rename so a crash never leaves a torn record.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file snapshot store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "file snapshot store: create directory")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".gdsim-snapshot-*")
	if err != nil {
		return errors.Wrap(err, "file snapshot store: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "file snapshot store: write")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "file snapshot store: close")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "file snapshot store: rename")
	}
	return nil
}

func (s *FileStore) Load(context.Context) (domain.Snapshot, bool, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Snapshot{}, false, nil
		}
		return domain.Snapshot{}, false, errors.Wrap(err, "file snapshot store: read")
	}
	snapshot, ok := decodeSnapshot(payload)
	return snapshot, ok, nil
}

func (s *FileStore) Clear(context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "file snapshot store: remove")
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
