// Package buildgraph provides the dependency-graph data model for triggerscope.
//
// It defines targets (build rules), files (source and data leaves) and the
// directed edges between them, together with the derived reverse-dependency
// index used by the scoring engine.
package buildgraph

import (
	"sort"
	"strings"
)

// Target is a build-graph node: a single build rule with its declared
// dependencies and data files. Targets are immutable once the graph that
// owns them has been built.
type Target struct {
	// Label is the unique identifier, e.g. "//pkg/sub:lib".
	Label string

	// Kind is the rule class (e.g. "go_library"). Opaque to the analyzer.
	Kind string

	// Deps are the labels of targets this target depends on.
	Deps []string

	// Data are the labels of source/data files this target reads.
	Data []string
}

// File is a leaf node representing a source or data file. Files have no
// outgoing edges.
type File struct {
	// Label is the build-graph label, e.g. "//pkg/sub:file.go".
	Label string

	// Path is the repository-relative path, e.g. "pkg/sub/file.go".
	Path string
}

// DependencyGraph is an immutable directed graph over targets and files.
//
// Forward edges run from a target to the targets and files it declares.
// Multiple paths to the same node (diamonds) are preserved; the dedup
// analyzer depends on seeing that sharing. The reverse-dependency index is
// built exactly once, after all forward edges are known, and is read-only
// afterwards, so the whole structure can be shared across goroutines
// without locking.
type DependencyGraph struct {
	targets map[string]*Target
	files   map[string]*File

	// rdeps maps a node label to the sorted labels of targets that
	// directly depend on it.
	rdeps map[string][]string
}

// Target returns the target with the given label.
func (g *DependencyGraph) Target(label string) (*Target, bool) {
	t, ok := g.targets[label]
	return t, ok
}

// File returns the file with the given label.
func (g *DependencyGraph) File(label string) (*File, bool) {
	f, ok := g.files[label]
	return f, ok
}

// IsFile reports whether the label names a file node.
func (g *DependencyGraph) IsFile(label string) bool {
	_, ok := g.files[label]
	return ok
}

// RDeps returns the labels of targets that directly depend on the given
// node. The returned slice is owned by the graph and must not be modified.
func (g *DependencyGraph) RDeps(label string) []string {
	return g.rdeps[label]
}

// TargetLabels returns all target labels in sorted order.
func (g *DependencyGraph) TargetLabels() []string {
	labels := make([]string, 0, len(g.targets))
	for label := range g.targets {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// TargetCount returns the number of targets.
func (g *DependencyGraph) TargetCount() int {
	return len(g.targets)
}

// FileCount returns the number of files.
func (g *DependencyGraph) FileCount() int {
	return len(g.files)
}

// Children returns the labels of all direct successors of a target:
// its dependency targets followed by its data files. For file labels it
// returns nil.
func (g *DependencyGraph) Children(label string) []string {
	t, ok := g.targets[label]
	if !ok {
		return nil
	}
	children := make([]string, 0, len(t.Deps)+len(t.Data))
	children = append(children, t.Deps...)
	children = append(children, t.Data...)
	return children
}

// LabelToPath converts a build label to a repository-relative path.
// "//pkg/sub:file.go" becomes "pkg/sub/file.go"; a label in the root
// package, "//:file.go", becomes "file.go".
func LabelToPath(label string) string {
	trimmed := strings.TrimPrefix(label, "//")
	pkg, name, found := strings.Cut(trimmed, ":")
	if !found {
		return trimmed
	}
	if pkg == "" {
		return name
	}
	return pkg + "/" + name
}

// IsExternal reports whether a label references another repository
// ("@repo//..."). External labels carry no local change history and are
// ignored during linking.
func IsExternal(label string) bool {
	return strings.HasPrefix(label, "@")
}
