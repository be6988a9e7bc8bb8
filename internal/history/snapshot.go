package history

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// HistorySnapshot is the portable form of an Index. Entries are stored
// per file, matching the index's own layout, so restore is a straight
// rebuild without inverting commit records.
type HistorySnapshot struct {
	Files []FileHistory `json:"files"`
}

// FileHistory holds the ordered change list of one file.
type FileHistory struct {
	Path    string      `json:"path"`
	Commits []CommitRef `json:"commits"`
}

// CommitRef is one commit touching one file.
type CommitRef struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// Snapshot returns a portable copy of the index with files in path order.
func (ix *Index) Snapshot() HistorySnapshot {
	paths := make([]string, 0, len(ix.byPath))
	for path := range ix.byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	snap := HistorySnapshot{Files: make([]FileHistory, 0, len(paths))}
	for _, path := range paths {
		entries := ix.byPath[path]
		refs := make([]CommitRef, 0, len(entries))
		for _, e := range entries {
			refs = append(refs, CommitRef{ID: e.id, Time: e.at})
		}
		snap.Files = append(snap.Files, FileHistory{Path: path, Commits: refs})
	}
	return snap
}

// FromSnapshot reconstructs an Index from its portable form.
func FromSnapshot(snap HistorySnapshot) *Index {
	ids := make(map[string]struct{})
	ix := &Index{byPath: make(map[string][]entry, len(snap.Files))}
	for _, fh := range snap.Files {
		entries := make([]entry, 0, len(fh.Commits))
		for _, ref := range fh.Commits {
			entries = append(entries, entry{id: ref.ID, at: ref.Time})
			ids[ref.ID] = struct{}{}
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].at != entries[j].at {
				return entries[i].at < entries[j].at
			}
			return entries[i].id < entries[j].id
		})
		ix.byPath[fh.Path] = entries
	}
	ix.commits = len(ids)

	views, _ := lru.New[Window, *View](viewCacheSize)
	ix.views = views
	return ix
}
