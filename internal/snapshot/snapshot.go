// Package snapshot provides versioned binary persistence for the dependency
// graph and the change-history index, so repeat runs against large
// repositories can skip re-querying the build tool and re-walking version
// control.
//
// A snapshot is a small fixed header (magic, format version, payload kind)
// followed by a zstd-compressed JSON payload. Snapshots are whole-structure:
// there is no merge or patch semantics. Two stores implement the same
// interface: a single-file store and a badger-backed registry.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/triggerscope/triggerscope/internal/buildgraph"
	"github.com/triggerscope/triggerscope/internal/history"
)

// FormatVersion tags every snapshot this build writes. Load refuses any
// other version outright; there is no best-effort decoding of a mismatched
// format.
const FormatVersion uint16 = 1

// magic identifies a triggerscope snapshot.
var magic = [4]byte{'T', 'S', 'N', 'P'}

// headerSize is the fixed preamble: magic, version, kind, one reserved byte.
const headerSize = 8

// Kind tags what structure a snapshot holds.
type Kind byte

const (
	KindGraph   Kind = 1
	KindHistory Kind = 2
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindGraph:
		return "graph"
	case KindHistory:
		return "history"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// IncompatibleSnapshotError reports a snapshot written by a different
// format version.
type IncompatibleSnapshotError struct {
	// Source names the file path or store key the snapshot came from.
	Source  string
	Version uint16
	Want    uint16
}

func (e *IncompatibleSnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s has format version %d, this build reads version %d",
		e.Source, e.Version, e.Want)
}

// CorruptSnapshotError reports truncated or unreadable snapshot data.
type CorruptSnapshotError struct {
	// Source names the file path or store key the snapshot came from.
	Source string
	Err    error
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s is corrupt: %v", e.Source, e.Err)
}

func (e *CorruptSnapshotError) Unwrap() error { return e.Err }

// Store persists and restores whole structures. Names are interpreted by
// the implementation: file paths for FileStore, registry keys for
// BadgerStore.
type Store interface {
	SaveGraph(name string, g *buildgraph.DependencyGraph) error
	LoadGraph(name string) (*buildgraph.DependencyGraph, error)
	SaveHistory(name string, ix *history.Index) error
	LoadHistory(name string) (*history.Index, error)
}

// Info describes a snapshot's header without decoding the payload.
type Info struct {
	Kind       Kind
	Version    uint16
	PayloadLen int
}

// encode frames and compresses a payload.
func encode(kind Kind, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s snapshot: %w", kind, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()

	out := make([]byte, headerSize, headerSize+len(body)/2)
	copy(out[0:4], magic[:])
	binary.BigEndian.PutUint16(out[4:6], FormatVersion)
	out[6] = byte(kind)
	out[7] = 0
	return enc.EncodeAll(body, out), nil
}

// decode validates the header and unpacks the payload into dst.
func decode(source string, data []byte, kind Kind, dst any) error {
	info, err := parseHeader(source, data)
	if err != nil {
		return err
	}
	if info.Version != FormatVersion {
		return &IncompatibleSnapshotError{Source: source, Version: info.Version, Want: FormatVersion}
	}
	if info.Kind != kind {
		return &CorruptSnapshotError{
			Source: source,
			Err:    fmt.Errorf("holds a %s snapshot, expected %s", info.Kind, kind),
		}
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	body, err := dec.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return &CorruptSnapshotError{Source: source, Err: err}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &CorruptSnapshotError{Source: source, Err: err}
	}
	return nil
}

// parseHeader reads the fixed preamble. Version mismatches are not flagged
// here so that Describe can still report foreign versions.
func parseHeader(source string, data []byte) (Info, error) {
	if len(data) < headerSize {
		return Info{}, &CorruptSnapshotError{
			Source: source,
			Err:    fmt.Errorf("truncated header (%d bytes)", len(data)),
		}
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return Info{}, &CorruptSnapshotError{Source: source, Err: fmt.Errorf("bad magic")}
	}
	return Info{
		Kind:       Kind(data[6]),
		Version:    binary.BigEndian.Uint16(data[4:6]),
		PayloadLen: len(data) - headerSize,
	}, nil
}
