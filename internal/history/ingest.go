package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// MalformedRecordError reports a raw commit record that could not be parsed.
type MalformedRecordError struct {
	// Index is the zero-based position of the record in the input stream.
	Index int

	// Snippet is a truncated copy of the offending line.
	Snippet string

	// Err is the underlying decode error.
	Err error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed commit record %d (%q): %v", e.Index, e.Snippet, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// rawCommit is the wire shape of one NDJSON commit line.
type rawCommit struct {
	ID    string   `json:"id"`
	Time  int64    `json:"time"`
	Paths []string `json:"paths"`
}

// ParseRecord decodes a single raw commit line. index is the record's
// position in the stream and is only used for error context.
func ParseRecord(line []byte, index int) (CommitRecord, error) {
	var raw rawCommit
	if err := json.Unmarshal(line, &raw); err != nil {
		return CommitRecord{}, &MalformedRecordError{Index: index, Snippet: snippet(line), Err: err}
	}
	if raw.ID == "" {
		return CommitRecord{}, &MalformedRecordError{
			Index:   index,
			Snippet: snippet(line),
			Err:     fmt.Errorf("commit record has no id"),
		}
	}
	if raw.Time <= 0 {
		return CommitRecord{}, &MalformedRecordError{
			Index:   index,
			Snippet: snippet(line),
			Err:     fmt.Errorf("commit record has no timestamp"),
		}
	}
	return CommitRecord{ID: raw.ID, Time: time.Unix(raw.Time, 0).UTC(), Paths: raw.Paths}, nil
}

func snippet(line []byte) string {
	const max = 120
	s := strings.TrimSpace(string(line))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// Ingest consumes a stream of newline-delimited raw commit records and
// produces an Index. Empty input yields an empty index, not an error.
func Ingest(r io.Reader) (*Index, error) {
	b := NewBuilder()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	index := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		rec, err := ParseRecord(line, index)
		if err != nil {
			return nil, err
		}
		b.Add(rec)
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading commit stream: %w", err)
	}

	return b.Build(), nil
}
