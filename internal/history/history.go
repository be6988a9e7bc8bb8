// Package history provides the per-file change index built from version
// control commit records.
//
// The index maps file paths to time-ordered commit lists so that
// window-filtered queries run off pre-sorted slices instead of rescanning
// the full commit sequence. Once built, an Index is read-only and safe for
// concurrent use.
package history

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CommitRecord is a single version-control change: identifier, timestamp,
// and the set of touched file paths. Immutable.
type CommitRecord struct {
	ID    string
	Time  time.Time
	Paths []string
}

// Window is the half-open [Since, Until) timestamp range used to filter
// which commits count toward a score. A zero Since or Until leaves that
// bound open.
type Window struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// IsZero reports whether the window is fully open.
func (w Window) IsZero() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

// entry is one commit touching one file.
type entry struct {
	id string
	at int64 // unix seconds
}

// viewCacheSize bounds how many window views an index keeps alive. Watch
// mode re-queries the same handful of windows repeatedly.
const viewCacheSize = 32

// Index is the per-file, time-indexed change history. Entries for each file
// are pre-sorted by timestamp so range filtering is a binary search, not a
// scan over all commits.
type Index struct {
	byPath  map[string][]entry
	commits int

	views *lru.Cache[Window, *View]
}

// FileCount returns the number of files with at least one recorded change.
func (ix *Index) FileCount() int {
	return len(ix.byPath)
}

// CommitCount returns the number of distinct commits in the index.
func (ix *Index) CommitCount() int {
	return ix.commits
}

// Commits returns the identifiers of commits that touched path within the
// window, in timestamp order. A commit touching the file several times in
// one record still appears exactly once.
func (ix *Index) Commits(path string, w Window) []string {
	entries := ix.byPath[path]
	if len(entries) == 0 {
		return nil
	}

	lo := 0
	if !w.Since.IsZero() {
		since := w.Since.Unix()
		lo = sort.Search(len(entries), func(i int) bool { return entries[i].at >= since })
	}
	hi := len(entries)
	if !w.Until.IsZero() {
		until := w.Until.Unix()
		hi = sort.Search(len(entries), func(i int) bool { return entries[i].at >= until })
	}
	if lo >= hi {
		return nil
	}

	ids := make([]string, 0, hi-lo)
	for _, e := range entries[lo:hi] {
		ids = append(ids, e.id)
	}
	return ids
}

// DistinctCommits returns the number of unique commit identifiers touching
// any of the given paths within the window. A commit touching several of
// the paths counts once.
func (ix *Index) DistinctCommits(paths []string, w Window) int {
	seen := make(map[string]struct{})
	for _, path := range paths {
		for _, id := range ix.Commits(path, w) {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// View returns a window-scoped read view of the index. Views memoize
// per-file lookups and are cached per window, so repeated queries against
// the same window (watch mode, successive strategies) share work.
func (ix *Index) View(w Window) *View {
	if v, ok := ix.views.Get(w); ok {
		return v
	}
	v := &View{ix: ix, w: w, memo: make(map[string][]string)}
	ix.views.Add(w, v)
	return v
}

// View is a read-only, window-filtered facade over an Index. Safe for
// concurrent use.
type View struct {
	ix *Index
	w  Window

	mu   sync.Mutex
	memo map[string][]string
}

// Commits returns the window-filtered commit identifiers for path.
func (v *View) Commits(path string) []string {
	v.mu.Lock()
	ids, ok := v.memo[path]
	v.mu.Unlock()
	if ok {
		return ids
	}

	ids = v.ix.Commits(path, v.w)

	v.mu.Lock()
	v.memo[path] = ids
	v.mu.Unlock()
	return ids
}

// Builder accumulates commit records and produces an Index.
type Builder struct {
	// byPath maps path -> commit id -> timestamp. The nested map enforces
	// the one-entry-per-touched-file invariant even when a commit lists
	// the same path twice.
	byPath map[string]map[string]int64
	ids    map[string]struct{}
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		byPath: make(map[string]map[string]int64),
		ids:    make(map[string]struct{}),
	}
}

// Add records one commit. Records may arrive in any time order.
func (b *Builder) Add(rec CommitRecord) {
	b.ids[rec.ID] = struct{}{}
	at := rec.Time.Unix()
	for _, path := range rec.Paths {
		byID := b.byPath[path]
		if byID == nil {
			byID = make(map[string]int64)
			b.byPath[path] = byID
		}
		byID[rec.ID] = at
	}
}

// Build finalizes the index. The builder must not be reused afterwards.
func (b *Builder) Build() *Index {
	ix := &Index{
		byPath:  make(map[string][]entry, len(b.byPath)),
		commits: len(b.ids),
	}
	for path, byID := range b.byPath {
		entries := make([]entry, 0, len(byID))
		for id, at := range byID {
			entries = append(entries, entry{id: id, at: at})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].at != entries[j].at {
				return entries[i].at < entries[j].at
			}
			return entries[i].id < entries[j].id
		})
		ix.byPath[path] = entries
	}

	// Cache construction cannot fail for a positive fixed size.
	views, _ := lru.New[Window, *View](viewCacheSize)
	ix.views = views
	return ix
}
