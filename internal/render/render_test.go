package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/triggerscope/triggerscope/internal/score"
)

func scoresResult() *score.Result {
	return &score.Result{
		Strategy: score.StrategyTriggerScores,
		Entries: []score.Entry{
			{Label: "//lib:core", Score: 6, Rebuilds: 2, ImmediateDependents: 3, TotalDependents: 5},
			{Label: "//app:a", Score: 0, Rebuilds: 2},
		},
	}
}

func uniqueResult() *score.Result {
	return &score.Result{
		Strategy: score.StrategyUniqueTriggers,
		Entries: []score.Entry{
			{Label: "//x:b", Score: 1, Rebuilds: 1},
			{Label: "//x:c", Score: 0},
		},
	}
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()

	t.Run("Scores", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, scoresResult(), FormatYAML, 0))

		var doc struct {
			Strategy string `yaml:"strategy"`
			Targets  []struct {
				Label               string `yaml:"label"`
				Rebuilds            int    `yaml:"rebuilds"`
				ImmediateDependents int    `yaml:"immediate_dependents"`
				TotalDependents     int    `yaml:"total_dependents"`
				Score               int    `yaml:"score"`
			} `yaml:"targets"`
		}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

		assert.Equal(t, "trigger-scores-map", doc.Strategy)
		require.Len(t, doc.Targets, 2)
		assert.Equal(t, "//lib:core", doc.Targets[0].Label)
		assert.Equal(t, 6, doc.Targets[0].Score)
		assert.Equal(t, 3, doc.Targets[0].ImmediateDependents)
	})

	t.Run("UniqueOmitsDependentColumns", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, uniqueResult(), FormatYAML, 0))

		assert.Contains(t, buf.String(), "most-unique-triggers")
		assert.Contains(t, buf.String(), "//x:b")
		assert.NotContains(t, buf.String(), "immediate_dependents")
	})

	t.Run("Limit", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, scoresResult(), FormatYAML, 1))

		assert.Contains(t, buf.String(), "//lib:core")
		assert.NotContains(t, buf.String(), "//app:a")
	})
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	t.Run("Scores", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, scoresResult(), FormatCSV, 0))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "//lib:core,2,3,5,6", lines[0])
		assert.Equal(t, "//app:a,2,0,0,0", lines[1])
	})

	t.Run("Unique", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, uniqueResult(), FormatCSV, 0))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "//x:b,1", lines[0])
		assert.Equal(t, "//x:c,0", lines[1])
	})
}

func TestWriteUnsupportedFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := Write(&buf, scoresResult(), Format("xml"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}
