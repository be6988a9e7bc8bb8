package score

import (
	"strings"
	"sync"

	"github.com/triggerscope/triggerscope/internal/buildgraph"
	"github.com/triggerscope/triggerscope/internal/dedup"
	"github.com/triggerscope/triggerscope/internal/history"
)

// Engine computes ranking scores over one graph/history pair. Both inputs
// must be fully built; the engine never mutates them.
type Engine struct {
	g    *buildgraph.DependencyGraph
	hist *history.Index
}

// New creates an Engine.
func New(g *buildgraph.DependencyGraph, hist *history.Index) *Engine {
	return &Engine{g: g, hist: hist}
}

// TriggerScores computes the global ranking for every target in scope.
//
// The root may be a single label or a wildcard pattern like "//pkg/...",
// which scores every rule target under the prefix. For each target T,
// score(T) = distinct commits touching files transitively under T (within
// the window) × number of targets directly depending on T. Commit identity
// is the commit id, so one commit touching many files of the same subtree
// counts once.
func (e *Engine) TriggerScores(root string, opts Options) (*Result, error) {
	roots, err := e.resolveScope(root)
	if err != nil {
		return nil, err
	}

	view := e.hist.View(opts.Window)

	// Phase 1: transitive commit sets, bottom-up with memoization. Shared
	// subtrees are visited once regardless of how many diamonds lead to
	// them.
	commits := make(map[string]map[string]struct{})
	for _, label := range roots {
		e.commitSet(label, view, commits)
	}

	// Phase 2: per-target assembly is independent once the commit sets
	// exist; fan out over a bounded worker pool.
	labels := make([]string, 0, len(commits))
	for label := range commits {
		labels = append(labels, label)
	}

	entries := make([]Entry, len(labels))
	var wg sync.WaitGroup
	work := make(chan int)
	for w := 0; w < opts.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				label := labels[i]
				rebuilds := len(commits[label])
				immediate := len(e.g.RDeps(label))
				entries[i] = Entry{
					Label:               label,
					Score:               rebuilds * immediate,
					Rebuilds:            rebuilds,
					ImmediateDependents: immediate,
					TotalDependents:     e.totalDependents(label),
				}
			}
		}()
	}
	for i := range labels {
		work <- i
	}
	close(work)
	wg.Wait()

	res := &Result{Strategy: StrategyTriggerScores, Entries: entries}
	res.Sort()
	return res, nil
}

// resolveScope expands a root pattern into concrete target labels.
func (e *Engine) resolveScope(root string) ([]string, error) {
	if strings.HasSuffix(root, "...") {
		prefix := strings.TrimSuffix(root, "...")
		prefix = strings.TrimSuffix(prefix, "/")
		var roots []string
		for _, label := range e.g.TargetLabels() {
			if strings.HasPrefix(label, prefix) {
				roots = append(roots, label)
			}
		}
		return roots, nil
	}
	if _, ok := e.g.Target(root); !ok {
		return nil, &UnknownTargetError{Label: root}
	}
	return []string{root}, nil
}

// commitSet returns the distinct commits reachable below label, memoized
// across the whole run. Iterative post-order so deep chains cannot blow
// the stack.
func (e *Engine) commitSet(label string, view *history.View, memo map[string]map[string]struct{}) map[string]struct{} {
	if set, ok := memo[label]; ok {
		return set
	}

	type frame struct {
		label    string
		expanded bool
	}
	stack := []frame{{label: label}}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		t, ok := e.g.Target(f.label)
		if !ok {
			// File labels resolve directly; no frame needed below them.
			stack = stack[:len(stack)-1]
			continue
		}

		if !f.expanded {
			f.expanded = true
			for _, dep := range t.Deps {
				if _, done := memo[dep]; !done {
					stack = append(stack, frame{label: dep})
				}
			}
			continue
		}

		stack = stack[:len(stack)-1]
		if _, done := memo[f.label]; done {
			continue
		}

		set := make(map[string]struct{})
		for _, dep := range t.Deps {
			for id := range memo[dep] {
				set[id] = struct{}{}
			}
		}
		for _, data := range t.Data {
			file, ok := e.g.File(data)
			if !ok {
				continue
			}
			for _, id := range view.Commits(file.Path) {
				set[id] = struct{}{}
			}
		}
		memo[f.label] = set
	}

	return memo[label]
}

// totalDependents counts the targets transitively depending on label,
// excluding label itself. BFS over the rdeps index.
func (e *Engine) totalDependents(label string) int {
	visited := make(map[string]struct{})
	queue := append([]string(nil), e.g.RDeps(label)...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		queue = append(queue, e.g.RDeps(cur)...)
	}
	return len(visited)
}

// MostUniqueTriggers computes, for each immediate child of root, the number
// of distinct commits reachable exclusively through that child: commits
// touching files under the child but not reachable through any sibling
// path. A child whose entire reachable set is shared with siblings scores
// zero — removing it would not reduce the root's trigger frequency.
func (e *Engine) MostUniqueTriggers(root string, opts Options) (*Result, error) {
	rootTarget, ok := e.g.Target(root)
	if !ok {
		return nil, &UnknownTargetError{Label: root}
	}

	dups := dedup.NewAnalyzer(e.g).Duplicates(rootTarget)
	view := e.hist.View(opts.Window)

	children := e.g.Children(root)
	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		score := 0
		if !dups.Contains(child) {
			score = len(e.exclusiveCommits(child, dups, view, opts.IncludeOwnFiles))
		}
		entries = append(entries, Entry{Label: child, Score: score, Rebuilds: score})
	}

	res := &Result{Strategy: StrategyUniqueTriggers, Entries: entries}
	res.Sort()
	return res, nil
}

// exclusiveCommits walks the subgraph under child, skipping every node in
// the duplicate set, and unions the commits of the files it reaches. With
// includeOwn false the child's directly attached files are left out and
// only descendant files count.
func (e *Engine) exclusiveCommits(child string, dups dedup.Set, view *history.View, includeOwn bool) map[string]struct{} {
	commits := make(map[string]struct{})
	visited := make(map[string]struct{})

	addFile := func(label string) {
		file, ok := e.g.File(label)
		if !ok {
			return
		}
		for _, id := range view.Commits(file.Path) {
			commits[id] = struct{}{}
		}
	}

	if e.g.IsFile(child) {
		addFile(child)
		return commits
	}

	var stack []string
	push := func(labels []string) {
		for _, label := range labels {
			if dups.Contains(label) {
				continue
			}
			stack = append(stack, label)
		}
	}

	childTarget, ok := e.g.Target(child)
	if !ok {
		return commits
	}
	visited[child] = struct{}{}
	push(childTarget.Deps)
	if includeOwn {
		push(childTarget.Data)
	}

	for len(stack) > 0 {
		label := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[label]; ok {
			continue
		}
		visited[label] = struct{}{}

		if t, ok := e.g.Target(label); ok {
			push(t.Deps)
			push(t.Data)
			continue
		}
		addFile(label)
	}

	return commits
}
