// Package gitlog extracts per-commit touched-file records from a git
// repository for change-history ingestion.
//
// Each commit is diffed against its first parent; the initial commit
// contributes its whole tree. Merge commits therefore only report what the
// merge itself changed relative to the first parent, matching what a
// rebuild trigger would see.
package gitlog

import (
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/triggerscope/triggerscope/internal/history"
)

// Options bound how much history is walked.
type Options struct {
	// MaxCommits stops the walk after this many commits. Zero means
	// unbounded.
	MaxCommits int

	// Since stops the walk at the first commit older than this time.
	// Zero means unbounded.
	Since time.Time
}

// errStopIteration aborts the commit walk early without reporting failure.
var errStopIteration = errors.New("stop iteration")

// History walks the repository at repoPath from HEAD and returns one
// commit record per visited commit.
func History(repoPath string, opts Options) ([]history.CommitRecord, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", repoPath, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD of %s: %w", repoPath, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walking history of %s: %w", repoPath, err)
	}
	defer iter.Close()

	var records []history.CommitRecord
	err = iter.ForEach(func(c *object.Commit) error {
		when := c.Committer.When
		if !opts.Since.IsZero() && when.Before(opts.Since) {
			return errStopIteration
		}

		paths, err := touchedPaths(c)
		if err != nil {
			return fmt.Errorf("diffing commit %s: %w", c.Hash, err)
		}

		records = append(records, history.CommitRecord{
			ID:    c.Hash.String(),
			Time:  when.UTC(),
			Paths: paths,
		})

		if opts.MaxCommits > 0 && len(records) >= opts.MaxCommits {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}

	return records, nil
}

// touchedPaths returns the paths changed by a commit relative to its first
// parent, or the whole tree for the initial commit.
func touchedPaths(c *object.Commit) ([]string, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	if c.NumParents() == 0 {
		var paths []string
		err := tree.Files().ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		return paths, err
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, err
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(changes))
	for _, change := range changes {
		// Deletions have an empty destination; the trigger still fires
		// for the removed path.
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		paths = append(paths, name)
	}
	return paths, nil
}
