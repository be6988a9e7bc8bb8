// Package score implements the trigger-scoring engine.
//
// Both strategies operate read-only over a fully built dependency graph and
// change-history index: the single synchronization barrier in the pipeline
// is that no score computation starts before the graph's reverse-dependency
// index is finalized, which the buildgraph package guarantees by
// construction.
package score

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/triggerscope/triggerscope/internal/history"
)

// Strategy names the scoring strategy that produced a result.
type Strategy string

const (
	// StrategyTriggerScores is the global ranking: distinct commits under
	// a target times the number of targets directly depending on it.
	StrategyTriggerScores Strategy = "trigger-scores-map"

	// StrategyUniqueTriggers is the local, dedup-aware ranking: commits
	// reachable exclusively through each immediate child of a root.
	StrategyUniqueTriggers Strategy = "most-unique-triggers"
)

// UnknownTargetError reports a query against a root label absent from the
// graph. A missing root is a hard failure, never an empty result.
type UnknownTargetError struct {
	Label string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("target %s not found in dependency graph", e.Label)
}

// Entry is one ranked row. For the unique-triggers strategy only Label and
// Score are meaningful; the dependent counts stay zero.
type Entry struct {
	Label string

	// Score is the ranking value of the strategy that produced the entry.
	Score int

	// Rebuilds is the number of distinct commits touching files under the
	// label within the window.
	Rebuilds int

	// ImmediateDependents is the number of targets directly depending on
	// the label.
	ImmediateDependents int

	// TotalDependents is the number of targets transitively depending on
	// the label.
	TotalDependents int
}

// Result is a pure scoring output: ranked entries plus the strategy that
// produced them. It keeps no reference back into the graph.
type Result struct {
	Strategy Strategy
	Entries  []Entry
}

// Sort orders entries by score descending, ties broken by label ascending
// for determinism. The engine itself imposes no iteration order; callers
// sort exactly once before rendering.
func (r *Result) Sort() {
	sort.Slice(r.Entries, func(i, j int) bool {
		if r.Entries[i].Score != r.Entries[j].Score {
			return r.Entries[i].Score > r.Entries[j].Score
		}
		return r.Entries[i].Label < r.Entries[j].Label
	})
}

// Options configure a scoring run.
type Options struct {
	// Window restricts which commits count. Zero means unbounded.
	Window history.Window

	// IncludeOwnFiles controls whether a child's own source files (not
	// just descendant files) count toward its exclusive trigger set in
	// the unique-triggers strategy.
	IncludeOwnFiles bool

	// Workers bounds the parallel fan-out of per-target score assembly.
	// Zero or negative means one worker per CPU.
	Workers int
}

// DefaultOptions returns the options used when the caller specifies none.
func DefaultOptions() Options {
	return Options{IncludeOwnFiles: true}
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}
