package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/triggerscope/triggerscope/internal/buildgraph"
	"github.com/triggerscope/triggerscope/internal/history"
)

// FileStore reads and writes snapshots as single files. Names are file
// paths. Writes go through a temp file and rename so a crashed run never
// leaves a half-written snapshot behind.
type FileStore struct{}

// NewFileStore creates a FileStore.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// SaveGraph writes a graph snapshot to path.
func (s *FileStore) SaveGraph(path string, g *buildgraph.DependencyGraph) error {
	data, err := encode(KindGraph, g.Snapshot())
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// LoadGraph reconstructs a graph from the snapshot at path.
func (s *FileStore) LoadGraph(path string) (*buildgraph.DependencyGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap buildgraph.GraphSnapshot
	if err := decode(path, data, KindGraph, &snap); err != nil {
		return nil, err
	}
	g, err := buildgraph.FromSnapshot(snap)
	if err != nil {
		return nil, &CorruptSnapshotError{Source: path, Err: err}
	}
	return g, nil
}

// SaveHistory writes a history snapshot to path.
func (s *FileStore) SaveHistory(path string, ix *history.Index) error {
	data, err := encode(KindHistory, ix.Snapshot())
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// LoadHistory reconstructs a history index from the snapshot at path.
func (s *FileStore) LoadHistory(path string) (*history.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap history.HistorySnapshot
	if err := decode(path, data, KindHistory, &snap); err != nil {
		return nil, err
	}
	return history.FromSnapshot(snap), nil
}

// Describe reports the header of the snapshot at path without decoding the
// payload. Works across format versions.
func Describe(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return parseHeader(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot %s: %w", path, err)
	}
	return nil
}
