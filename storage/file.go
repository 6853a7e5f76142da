package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/keys-api/interfaces"
)

// FileSource loads a JSON snapshot exported by the updater to the local file system.
type FileSource struct {
	path        string
	log         *slog.Logger
	locationURI string
}

// NewFileSource creates a source reading the snapshot file at path.
func NewFileSource(path string, log *slog.Logger) *FileSource {
	return &FileSource{
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", path),
	}
}

// Load reads and decodes the snapshot file.
// Returns ErrSnapshotNotFound if the file doesn't exist.
func (s *FileSource) Load(ctx context.Context) (*interfaces.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Loaded snapshot from file",
		slog.String("path", s.path),
		slog.Int("size", len(data)))
	return snapshot, nil
}

func (s *FileSource) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.path))
}

// LocationURI returns the URI that identifies this source.
func (s *FileSource) LocationURI() string {
	return s.locationURI
}

// DecodeSnapshot parses the JSON snapshot export format.
func DecodeSnapshot(data []byte) (*interfaces.Snapshot, error) {
	var snapshot interfaces.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	if snapshot.Keys == nil {
		snapshot.Keys = []interfaces.RegistryKey{}
	}
	if snapshot.Operators == nil {
		snapshot.Operators = []interfaces.RegistryOperator{}
	}
	return &snapshot, nil
}

// WriteSnapshotFile writes the snapshot in the JSON export format, replacing
// the target file atomically.
func WriteSnapshotFile(path string, snapshot *interfaces.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, path)
}
