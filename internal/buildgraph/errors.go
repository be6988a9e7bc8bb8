package buildgraph

import "fmt"

// MalformedRecordError reports a raw record that could not be parsed.
type MalformedRecordError struct {
	// Index is the zero-based position of the record in the input stream.
	Index int

	// Snippet is a truncated copy of the offending line.
	Snippet string

	// Err is the underlying decode error.
	Err error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed target record %d (%q): %v", e.Index, e.Snippet, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// DuplicateTargetError reports a label defined twice with differing content.
// Byte-identical re-definitions are tolerated; bazel query emits those when
// a target is reached through several query shards.
type DuplicateTargetError struct {
	Label string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("target %s defined twice with differing content", e.Label)
}

// CycleError reports a dependency cycle among targets. The declared
// dependency relation restricted to targets must be acyclic; a cycle is a
// fatal ingestion error.
type CycleError struct {
	// Cycle holds the labels of the targets still mutually reachable after
	// the acyclic portion of the graph has been peeled away.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among %d targets (including %s)", len(e.Cycle), e.Cycle[0])
}
