package buildgraph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Record is one raw entry of a streamed build-graph query, mapped to a
// closed set of variants during parsing. Exactly one field is non-nil.
type Record struct {
	Rule         *RuleRecord
	SourceFile   *SourceFileRecord
	GeneratedFil *GeneratedFileRecord
	PackageGroup *PackageGroupRecord
}

// Label returns the defining label of whichever variant the record holds.
func (r Record) Label() string {
	switch {
	case r.Rule != nil:
		return r.Rule.Name
	case r.SourceFile != nil:
		return r.SourceFile.Name
	case r.GeneratedFil != nil:
		return r.GeneratedFil.Name
	case r.PackageGroup != nil:
		return r.PackageGroup.Name
	}
	return ""
}

// RuleRecord describes a build rule: its label, rule class, and inputs.
// Inputs mix target and file labels; they are resolved during linking.
type RuleRecord struct {
	Name      string   `json:"name"`
	RuleClass string   `json:"ruleClass"`
	Inputs    []string `json:"ruleInput"`
}

// SourceFileRecord describes a checked-in source file.
type SourceFileRecord struct {
	Name string `json:"name"`
}

// GeneratedFileRecord describes a file produced by another rule.
type GeneratedFileRecord struct {
	Name           string `json:"name"`
	GeneratingRule string `json:"generatingRule"`
}

// PackageGroupRecord describes a visibility package group. It contributes
// no edges.
type PackageGroupRecord struct {
	Name string `json:"name"`
}

// rawRecord is the wire shape of one NDJSON line, as produced by
// `bazel query --output streamed_jsonproto`.
type rawRecord struct {
	Type          string               `json:"type"`
	Rule          *RuleRecord          `json:"rule"`
	SourceFile    *SourceFileRecord    `json:"sourceFile"`
	GeneratedFile *GeneratedFileRecord `json:"generatedFile"`
	PackageGroup  *PackageGroupRecord  `json:"packageGroup"`
}

// ParseRecord decodes a single raw record line. index is the record's
// position in the stream and is only used for error context.
func ParseRecord(line []byte, index int) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, &MalformedRecordError{Index: index, Snippet: snippet(line), Err: err}
	}

	var rec Record
	switch raw.Type {
	case "RULE":
		rec.Rule = raw.Rule
	case "SOURCE_FILE":
		rec.SourceFile = raw.SourceFile
	case "GENERATED_FILE":
		rec.GeneratedFil = raw.GeneratedFile
	case "PACKAGE_GROUP":
		rec.PackageGroup = raw.PackageGroup
	default:
		return Record{}, &MalformedRecordError{
			Index:   index,
			Snippet: snippet(line),
			Err:     fmt.Errorf("unknown record type %q", raw.Type),
		}
	}
	if rec.Label() == "" {
		return Record{}, &MalformedRecordError{
			Index:   index,
			Snippet: snippet(line),
			Err:     fmt.Errorf("record of type %s has no name", raw.Type),
		}
	}
	return rec, nil
}

func snippet(line []byte) string {
	const max = 120
	s := strings.TrimSpace(string(line))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// Builder accumulates records and assembles them into a DependencyGraph.
//
// Construction is two-phase: Add only collects records by label, so edges
// may reference labels whose defining record has not arrived yet. Build
// performs the link-and-validate pass once the full sequence has been
// consumed, and the reverse-dependency index is derived strictly after all
// forward edges are known.
type Builder struct {
	rules     map[string]*RuleRecord
	files     map[string]struct{}
	generated map[string]struct{}
	groups    map[string]struct{}
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		rules:     make(map[string]*RuleRecord),
		files:     make(map[string]struct{}),
		generated: make(map[string]struct{}),
		groups:    make(map[string]struct{}),
	}
}

// Add collects one record. It fails with DuplicateTargetError when a rule
// label is re-defined with differing content.
func (b *Builder) Add(rec Record) error {
	switch {
	case rec.Rule != nil:
		if prev, ok := b.rules[rec.Rule.Name]; ok {
			if !sameRule(prev, rec.Rule) {
				return &DuplicateTargetError{Label: rec.Rule.Name}
			}
			return nil
		}
		b.rules[rec.Rule.Name] = rec.Rule
	case rec.SourceFile != nil:
		b.files[rec.SourceFile.Name] = struct{}{}
	case rec.GeneratedFil != nil:
		b.generated[rec.GeneratedFil.Name] = struct{}{}
	case rec.PackageGroup != nil:
		b.groups[rec.PackageGroup.Name] = struct{}{}
	}
	return nil
}

func sameRule(a, b *RuleRecord) bool {
	if a.RuleClass != b.RuleClass || len(a.Inputs) != len(b.Inputs) {
		return false
	}
	for i := range a.Inputs {
		if a.Inputs[i] != b.Inputs[i] {
			return false
		}
	}
	return true
}

// Build links and validates the collected records and returns the finished
// graph. It fails with CycleError if the target-to-target edges contain a
// cycle.
func (b *Builder) Build() (*DependencyGraph, error) {
	g := &DependencyGraph{
		targets: make(map[string]*Target, len(b.rules)),
		files:   make(map[string]*File),
		rdeps:   make(map[string][]string),
	}

	for label, rule := range b.rules {
		t := &Target{Label: label, Kind: rule.RuleClass}
		for _, input := range rule.Inputs {
			// External labels carry no local change history.
			if IsExternal(input) {
				continue
			}
			switch {
			case b.rules[input] != nil:
				t.Deps = append(t.Deps, input)
			case isGroupMember(b.groups, input):
				// Visibility entries contribute no edges.
			default:
				// Source files, generated files, and inputs outside the
				// query universe are all modeled as file leaves.
				t.Data = append(t.Data, input)
				if _, ok := g.files[input]; !ok {
					g.files[input] = &File{Label: input, Path: LabelToPath(input)}
				}
			}
		}
		sort.Strings(t.Deps)
		sort.Strings(t.Data)
		g.targets[label] = t
	}

	if err := checkAcyclic(g.targets); err != nil {
		return nil, err
	}

	// Finalize: derive rdeps only after every forward edge is in place.
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

func isGroupMember(groups map[string]struct{}, label string) bool {
	_, ok := groups[label]
	return ok
}

// checkAcyclic runs Kahn's algorithm over the target-to-target edges.
// Whatever cannot be peeled away is part of at least one cycle.
func checkAcyclic(targets map[string]*Target) error {
	indegree := make(map[string]int, len(targets))
	for label := range targets {
		indegree[label] = 0
	}
	for _, t := range targets {
		for _, dep := range t.Deps {
			indegree[dep]++
		}
	}

	queue := make([]string, 0, len(targets))
	for label, deg := range indegree {
		if deg == 0 {
			queue = append(queue, label)
		}
	}

	removed := 0
	for len(queue) > 0 {
		label := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		removed++
		for _, dep := range targets[label].Deps {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if removed == len(targets) {
		return nil
	}

	cycle := make([]string, 0, len(targets)-removed)
	for label, deg := range indegree {
		if deg > 0 {
			cycle = append(cycle, label)
		}
	}
	sort.Strings(cycle)
	return &CycleError{Cycle: cycle}
}

// Ingest consumes a stream of newline-delimited raw target records and
// produces a DependencyGraph. Blank lines are skipped; anything else that
// fails to parse aborts ingestion with MalformedRecordError.
func Ingest(r io.Reader) (*DependencyGraph, error) {
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
		if err := b.Add(rec); err != nil {
			return nil, err
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading record stream: %w", err)
	}

	return b.Build()
}
