package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/triggerscope/triggerscope/internal/buildgraph"
	"github.com/triggerscope/triggerscope/internal/history"
)

// Key prefixes for the two snapshot kinds.
const (
	prefixGraph   = "g:"
	prefixHistory = "h:"
)

// BadgerStore keeps snapshots in a BadgerDB directory, keyed by name.
// It carries the same framed blobs as FileStore, so version and corruption
// checks behave identically. Useful when one cache directory holds the
// snapshots of many workspaces or targets.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the registry at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithNumCompactors(2).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot registry: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SaveGraph stores a graph snapshot under name.
func (s *BadgerStore) SaveGraph(name string, g *buildgraph.DependencyGraph) error {
	data, err := encode(KindGraph, g.Snapshot())
	if err != nil {
		return err
	}
	return s.put(prefixGraph+name, data)
}

// LoadGraph reconstructs the graph snapshot stored under name.
func (s *BadgerStore) LoadGraph(name string) (*buildgraph.DependencyGraph, error) {
	data, err := s.get(prefixGraph + name)
	if err != nil {
		return nil, err
	}
	var snap buildgraph.GraphSnapshot
	if err := decode(name, data, KindGraph, &snap); err != nil {
		return nil, err
	}
	g, err := buildgraph.FromSnapshot(snap)
	if err != nil {
		return nil, &CorruptSnapshotError{Source: name, Err: err}
	}
	return g, nil
}

// SaveHistory stores a history snapshot under name.
func (s *BadgerStore) SaveHistory(name string, ix *history.Index) error {
	data, err := encode(KindHistory, ix.Snapshot())
	if err != nil {
		return err
	}
	return s.put(prefixHistory+name, data)
}

// LoadHistory reconstructs the history snapshot stored under name.
func (s *BadgerStore) LoadHistory(name string) (*history.Index, error) {
	data, err := s.get(prefixHistory + name)
	if err != nil {
		return nil, err
	}
	var snap history.HistorySnapshot
	if err := decode(name, data, KindHistory, &snap); err != nil {
		return nil, err
	}
	return history.FromSnapshot(snap), nil
}

// Entry describes one stored snapshot.
type Entry struct {
	Name string
	Kind Kind
	Size int
}

// List returns all stored snapshots, sorted by name.
func (s *BadgerStore) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			e := Entry{Size: int(item.ValueSize())}
			switch {
			case strings.HasPrefix(key, prefixGraph):
				e.Name = strings.TrimPrefix(key, prefixGraph)
				e.Kind = KindGraph
			case strings.HasPrefix(key, prefixHistory):
				e.Name = strings.TrimPrefix(key, prefixHistory)
				e.Kind = KindHistory
			default:
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *BadgerStore) put(key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("storing snapshot %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) get(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("snapshot %s not found in registry", key)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", key, err)
	}
	return data, nil
}
