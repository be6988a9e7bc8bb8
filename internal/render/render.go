// Package render writes score results in the supported output formats.
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/triggerscope/triggerscope/internal/score"
)

// Format names an output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Write renders a result in the requested format. limit > 0 truncates the
// output to the top entries; the result must already be sorted.
func Write(w io.Writer, res *score.Result, format Format, limit int) error {
	entries := res.Entries
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	switch format {
	case FormatYAML:
		return writeYAML(w, res.Strategy, entries)
	case FormatCSV:
		return writeCSV(w, res.Strategy, entries)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// yamlEntry is the full row shape of the trigger-scores strategy.
type yamlEntry struct {
	Label               string `yaml:"label"`
	Rebuilds            int    `yaml:"rebuilds"`
	ImmediateDependents int    `yaml:"immediate_dependents"`
	TotalDependents     int    `yaml:"total_dependents"`
	Score               int    `yaml:"score"`
}

// yamlDependency is the compact row shape of the unique-triggers strategy.
type yamlDependency struct {
	Label string `yaml:"label"`
	Score int    `yaml:"score"`
}

func writeYAML(w io.Writer, strategy score.Strategy, entries []score.Entry) error {
	doc := struct {
		Strategy score.Strategy `yaml:"strategy"`
		Targets  any            `yaml:"targets"`
	}{Strategy: strategy}

	if strategy == score.StrategyUniqueTriggers {
		rows := make([]yamlDependency, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, yamlDependency{Label: e.Label, Score: e.Score})
		}
		doc.Targets = rows
	} else {
		rows := make([]yamlEntry, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, yamlEntry{
				Label:               e.Label,
				Rebuilds:            e.Rebuilds,
				ImmediateDependents: e.ImmediateDependents,
				TotalDependents:     e.TotalDependents,
				Score:               e.Score,
			})
		}
		doc.Targets = rows
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(doc)
}

func writeCSV(w io.Writer, strategy score.Strategy, entries []score.Entry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		var row []string
		if strategy == score.StrategyUniqueTriggers {
			row = []string{e.Label, strconv.Itoa(e.Score)}
		} else {
			row = []string{
				e.Label,
				strconv.Itoa(e.Rebuilds),
				strconv.Itoa(e.ImmediateDependents),
				strconv.Itoa(e.TotalDependents),
				strconv.Itoa(e.Score),
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
