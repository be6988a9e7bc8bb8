package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triggerscope/triggerscope/internal/history"
	"github.com/triggerscope/triggerscope/internal/render"
	"github.com/triggerscope/triggerscope/internal/snapshot"
)

const queryStream = `{"type":"RULE","rule":{"name":"//app:bin","ruleClass":"go_binary","ruleInput":["//lib:core","//app:main.go"]}}
{"type":"RULE","rule":{"name":"//lib:core","ruleClass":"go_library","ruleInput":["//lib:core.go"]}}
{"type":"SOURCE_FILE","sourceFile":{"name":"//app:main.go"}}
{"type":"SOURCE_FILE","sourceFile":{"name":"//lib:core.go"}}
`

func testGlobals(t *testing.T) *Globals {
	t.Helper()
	g := &Globals{Workspace: t.TempDir()}
	require.NoError(t, g.setup())
	return g
}

func writeHistorySnapshot(t *testing.T, g *Globals) {
	t.Helper()
	b := history.NewBuilder()
	b.Add(history.CommitRecord{ID: "c1", Time: time.Unix(100, 0), Paths: []string{"lib/core.go"}})
	b.Add(history.CommitRecord{ID: "c2", Time: time.Unix(200, 0), Paths: []string{"lib/core.go"}})
	ix := b.Build()

	require.NoError(t, os.MkdirAll(g.SnapshotDir, 0o755))
	path := filepath.Join(g.SnapshotDir, historySnapshotFile)
	require.NoError(t, snapshot.NewFileStore().SaveHistory(path, ix))
}

// captureStdout runs fn with os.Stdout redirected to a buffer.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	os.Stdout = old
	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String(), runErr
}

func TestGlobalsSetup(t *testing.T) {
	g := testGlobals(t)

	assert.True(t, filepath.IsAbs(g.Workspace))
	assert.Equal(t, filepath.Join(g.Workspace, ".triggerscope"), g.SnapshotDir)
	assert.NotNil(t, g.log)
	assert.Equal(t, render.FormatYAML, g.outputFormat(""))
	assert.Equal(t, render.FormatCSV, g.outputFormat("csv"))
}

func TestGlobalsSetupReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".triggerscope.toml"),
		[]byte("format = \"csv\"\nsnapshot_dir = \"cache\"\n"), 0o644))

	g := &Globals{Workspace: dir}
	require.NoError(t, g.setup())

	assert.Equal(t, render.FormatCSV, g.outputFormat(""))
	assert.Equal(t, filepath.Join(g.Workspace, "cache"), g.SnapshotDir)
}

func TestGlobalsWindow(t *testing.T) {
	g := testGlobals(t)

	t.Run("FlagsWin", func(t *testing.T) {
		w, err := g.window("2026-01-01", "2026-02-01")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), w.Since)
		assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), w.Until)
	})

	t.Run("EmptyFlagsAreOpen", func(t *testing.T) {
		w, err := g.window("", "")
		require.NoError(t, err)
		assert.True(t, w.IsZero())
	})

	t.Run("BadFlag", func(t *testing.T) {
		_, err := g.window("not-a-date", "")
		require.Error(t, err)
	})
}

func TestPrecalculateGraphFromInput(t *testing.T) {
	g := testGlobals(t)
	input := filepath.Join(g.Workspace, "query.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(queryStream), 0o644))

	cmd := &PrecalculateGraphCmd{Input: input}
	_, err := captureStdout(t, func() error { return cmd.Run(g) })
	require.NoError(t, err)

	graph, err := snapshot.NewFileStore().LoadGraph(filepath.Join(g.SnapshotDir, graphSnapshotFile))
	require.NoError(t, err)
	assert.Equal(t, 2, graph.TargetCount())
}

func TestAnalyzeScoresEndToEnd(t *testing.T) {
	g := testGlobals(t)
	input := filepath.Join(g.Workspace, "query.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(queryStream), 0o644))

	precalc := &PrecalculateGraphCmd{Input: input}
	_, err := captureStdout(t, func() error { return precalc.Run(g) })
	require.NoError(t, err)
	writeHistorySnapshot(t, g)

	scores := &ScoresCmd{Root: "//app:bin"}
	out, err := captureStdout(t, func() error { return scores.Run(g) })
	require.NoError(t, err)

	assert.Contains(t, out, "strategy: trigger-scores-map")
	assert.Contains(t, out, "//lib:core")
	// Two commits on core.go, one direct dependent.
	assert.Contains(t, out, "score: 2")
}

func TestAnalyzeUniqueEndToEnd(t *testing.T) {
	g := testGlobals(t)
	input := filepath.Join(g.Workspace, "query.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(queryStream), 0o644))

	precalc := &PrecalculateGraphCmd{Input: input}
	_, err := captureStdout(t, func() error { return precalc.Run(g) })
	require.NoError(t, err)
	writeHistorySnapshot(t, g)

	unique := &UniqueCmd{Root: "//app:bin"}
	out, err := captureStdout(t, func() error { return unique.Run(g) })
	require.NoError(t, err)

	assert.Contains(t, out, "strategy: most-unique-triggers")
	assert.Contains(t, out, "//lib:core")
}

func TestAnalyzeWithoutSnapshots(t *testing.T) {
	g := testGlobals(t)

	scores := &ScoresCmd{Root: "//app:bin"}
	_, err := captureStdout(t, func() error { return scores.Run(g) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precalculate")
}

func TestStatus(t *testing.T) {
	g := testGlobals(t)

	t.Run("Empty", func(t *testing.T) {
		out, err := captureStdout(t, func() error { return (&StatusCmd{}).Run(g) })
		require.NoError(t, err)
		assert.Contains(t, out, "No snapshots")
	})

	t.Run("AfterPrecalculate", func(t *testing.T) {
		input := filepath.Join(g.Workspace, "query.ndjson")
		require.NoError(t, os.WriteFile(input, []byte(queryStream), 0o644))
		precalc := &PrecalculateGraphCmd{Input: input}
		_, err := captureStdout(t, func() error { return precalc.Run(g) })
		require.NoError(t, err)

		out, err := captureStdout(t, func() error { return (&StatusCmd{}).Run(g) })
		require.NoError(t, err)
		assert.Contains(t, out, graphSnapshotFile)
		assert.Contains(t, out, "kind=graph")
	})
}

func TestRemovableDryRun(t *testing.T) {
	g := testGlobals(t)
	input := filepath.Join(g.Workspace, "query.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(queryStream), 0o644))

	precalc := &PrecalculateGraphCmd{Input: input}
	_, err := captureStdout(t, func() error { return precalc.Run(g) })
	require.NoError(t, err)
	writeHistorySnapshot(t, g)

	// //lib:core has exclusive triggers, //app:main.go has none.
	removable := &RemovableCmd{Root: "//app:bin", DryRun: true}
	out, err := captureStdout(t, func() error { return removable.Run(g) })
	require.NoError(t, err)
	assert.Contains(t, out, "//app:main.go")
	assert.NotContains(t, out, "//lib:core is removable")
}

func TestFirstNonZero(t *testing.T) {
	assert.Equal(t, 4, firstNonZero(0, 4, 7))
	assert.Equal(t, 7, firstNonZero(7, 4))
	assert.Equal(t, 0, firstNonZero(0, 0))
}
