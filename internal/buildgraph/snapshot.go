package buildgraph

import "sort"

// GraphSnapshot is the portable form of a DependencyGraph, suitable for
// serialization. File nodes and the rdeps index are derived state and are
// rebuilt on restore rather than persisted.
type GraphSnapshot struct {
	Targets []TargetSnapshot `json:"targets"`
}

// TargetSnapshot is the portable form of a single target.
type TargetSnapshot struct {
	Label string   `json:"label"`
	Kind  string   `json:"kind"`
	Deps  []string `json:"deps,omitempty"`
	Data  []string `json:"data,omitempty"`
}

// Snapshot returns a portable copy of the graph with targets in label order.
func (g *DependencyGraph) Snapshot() GraphSnapshot {
	snap := GraphSnapshot{Targets: make([]TargetSnapshot, 0, len(g.targets))}
	for _, label := range g.TargetLabels() {
		t := g.targets[label]
		snap.Targets = append(snap.Targets, TargetSnapshot{
			Label: t.Label,
			Kind:  t.Kind,
			Deps:  append([]string(nil), t.Deps...),
			Data:  append([]string(nil), t.Data...),
		})
	}
	return snap
}

// FromSnapshot reconstructs a DependencyGraph, re-deriving file nodes and
// the rdeps index and re-validating acyclicity.
func FromSnapshot(snap GraphSnapshot) (*DependencyGraph, error) {
	g := &DependencyGraph{
		targets: make(map[string]*Target, len(snap.Targets)),
		files:   make(map[string]*File),
		rdeps:   make(map[string][]string),
	}

	for _, ts := range snap.Targets {
		t := &Target{
			Label: ts.Label,
			Kind:  ts.Kind,
			Deps:  append([]string(nil), ts.Deps...),
			Data:  append([]string(nil), ts.Data...),
		}
		g.targets[t.Label] = t
		for _, data := range t.Data {
			if _, ok := g.files[data]; !ok {
				g.files[data] = &File{Label: data, Path: LabelToPath(data)}
			}
		}
	}

	if err := checkAcyclic(g.targets); err != nil {
		return nil, err
	}

	for label, t := range g.targets {
		for _, dep := range t.Deps {
			g.rdeps[dep] = append(g.rdeps[dep], label)
		}
		for _, data := range t.Data {
			g.rdeps[data] = append(g.rdeps[data], label)
		}
	}
	for _, dependents := range g.rdeps {
		sort.Strings(dependents)
	}

	return g, nil
}
