// Package cmd provides the CLI command implementations for triggerscope.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/fatih/color"

	"github.com/triggerscope/triggerscope/internal/bazel"
	"github.com/triggerscope/triggerscope/internal/buildgraph"
	"github.com/triggerscope/triggerscope/internal/buildozer"
	"github.com/triggerscope/triggerscope/internal/config"
	"github.com/triggerscope/triggerscope/internal/gitlog"
	"github.com/triggerscope/triggerscope/internal/history"
	"github.com/triggerscope/triggerscope/internal/render"
	"github.com/triggerscope/triggerscope/internal/score"
	"github.com/triggerscope/triggerscope/internal/snapshot"
	"github.com/triggerscope/triggerscope/internal/watch"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Snapshot names inside the snapshot directory.
const (
	graphSnapshotFile   = "graph.snap"
	historySnapshotFile = "history.snap"
	registryDirName     = "registry"
)

// Globals carries the flags shared by every command plus the resolved
// project configuration.
type Globals struct {
	Workspace   string `short:"C" default:"." help:"Workspace root to operate in"`
	SnapshotDir string `help:"Directory holding precalculated snapshots (default from config)"`
	Registry    bool   `help:"Keep snapshots in a BadgerDB registry instead of flat files"`
	Verbose     bool   `short:"v" help:"Enable debug logging"`

	cfg config.Config
	log *log.Logger
}

// setup resolves the workspace path, loads the optional project file, and
// configures logging. Called once after flag parsing.
func (g *Globals) setup() error {
	abs, err := filepath.Abs(g.Workspace)
	if err != nil {
		return fmt.Errorf("resolving workspace path: %w", err)
	}
	g.Workspace = abs

	g.cfg, err = config.Load(g.Workspace)
	if err != nil {
		return err
	}
	if g.SnapshotDir == "" {
		g.SnapshotDir = g.cfg.SnapshotDir
	}
	if !filepath.IsAbs(g.SnapshotDir) {
		g.SnapshotDir = filepath.Join(g.Workspace, g.SnapshotDir)
	}

	g.log = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if g.Verbose {
		g.log.SetLevel(log.DebugLevel)
	}
	return nil
}

// openStore returns the configured snapshot backend together with its graph
// and history snapshot names. The returned closer is always safe to call.
func (g *Globals) openStore() (snapshot.Store, string, string, func(), error) {
	if g.Registry {
		store, err := snapshot.OpenBadgerStore(filepath.Join(g.SnapshotDir, registryDirName))
		if err != nil {
			return nil, "", "", nil, err
		}
		return store, "graph", "history", func() { _ = store.Close() }, nil
	}

	if err := os.MkdirAll(g.SnapshotDir, 0o755); err != nil {
		return nil, "", "", nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	graphName := filepath.Join(g.SnapshotDir, graphSnapshotFile)
	historyName := filepath.Join(g.SnapshotDir, historySnapshotFile)
	return snapshot.NewFileStore(), graphName, historyName, func() {}, nil
}

// outputFormat resolves the effective output format from a flag value and
// the project file.
func (g *Globals) outputFormat(flag string) render.Format {
	if flag != "" {
		return render.Format(flag)
	}
	return render.Format(g.cfg.Format)
}

// window builds the commit window from flag values, falling back to the
// project file.
func (g *Globals) window(since, until string) (history.Window, error) {
	var w history.Window
	var err error

	if since != "" {
		w.Since, err = parseTimeFlag("since", since)
	} else {
		w.Since, err = g.cfg.SinceTime()
	}
	if err != nil {
		return w, err
	}

	if until != "" {
		w.Until, err = parseTimeFlag("until", until)
	} else {
		w.Until, err = g.cfg.UntilTime()
	}
	return w, err
}

func parseTimeFlag(name, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, err = time.Parse("2006-01-02", value)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s %q: %w", name, value, err)
	}
	return t.UTC(), nil
}

// PrecalculateCmd groups the two snapshot producers.
type PrecalculateCmd struct {
	Graph   PrecalculateGraphCmd   `cmd:"" help:"Build and store the dependency graph snapshot"`
	History PrecalculateHistoryCmd `cmd:"" help:"Build and store the change-history snapshot"`
}

// PrecalculateGraphCmd ingests the dependency graph and persists it.
type PrecalculateGraphCmd struct {
	Target string `arg:"" optional:"" default:"//..." help:"Universe target for the dependency query"`
	Input  string `help:"Ingest a pre-captured query output file instead of running bazel"`
}

// Run executes the precalculate graph command.
func (c *PrecalculateGraphCmd) Run(g *Globals) error {
	ctx := context.Background()
	start := time.Now()

	var (
		graph *buildgraph.DependencyGraph
		err   error
	)
	if c.Input != "" {
		g.log.Info("ingesting captured query output", "input", c.Input)
		graph, err = bazel.IngestFile(c.Input)
	} else {
		g.log.Info("querying dependency graph", "target", c.Target, "workspace", g.Workspace)
		graph, err = bazel.QueryDeps(ctx, g.Workspace, c.Target)
	}
	if err != nil {
		return err
	}

	store, graphName, _, closeStore, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SaveGraph(graphName, graph); err != nil {
		return err
	}

	color.Green("✓ Graph snapshot written")
	fmt.Printf("  Targets:   %d\n", graph.TargetCount())
	fmt.Printf("  Files:     %d\n", graph.FileCount())
	fmt.Printf("  Duration:  %.2fs\n", time.Since(start).Seconds())
	return nil
}

// PrecalculateHistoryCmd walks git history and persists the change index.
type PrecalculateHistoryCmd struct {
	MaxCommits int    `help:"Stop after this many commits (0 = unbounded)"`
	Since      string `help:"Oldest commit time to walk (RFC 3339 or YYYY-MM-DD)"`
}

// Run executes the precalculate history command.
func (c *PrecalculateHistoryCmd) Run(g *Globals) error {
	start := time.Now()

	opts := gitlog.Options{MaxCommits: c.MaxCommits}
	if c.Since != "" {
		since, err := parseTimeFlag("since", c.Since)
		if err != nil {
			return err
		}
		opts.Since = since
	} else if since, err := g.cfg.SinceTime(); err == nil {
		opts.Since = since
	}

	g.log.Info("walking git history", "workspace", g.Workspace)
	records, err := gitlog.History(g.Workspace, opts)
	if err != nil {
		return err
	}

	builder := history.NewBuilder()
	for _, rec := range records {
		builder.Add(rec)
	}
	ix := builder.Build()

	store, _, historyName, closeStore, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SaveHistory(historyName, ix); err != nil {
		return err
	}

	color.Green("✓ History snapshot written")
	fmt.Printf("  Commits:   %d\n", ix.CommitCount())
	fmt.Printf("  Files:     %d\n", ix.FileCount())
	fmt.Printf("  Duration:  %.2fs\n", time.Since(start).Seconds())
	return nil
}

// AnalyzeCmd groups the two scoring strategies.
type AnalyzeCmd struct {
	Scores ScoresCmd `cmd:"" help:"Rank all targets by rebuild trigger score"`
	Unique UniqueCmd `cmd:"" help:"Rank a target's direct children by exclusive triggers"`
}

// ScoresCmd computes the global trigger-score ranking.
type ScoresCmd struct {
	Root    string `arg:"" help:"Root target or wildcard pattern (e.g. //pkg/...)"`
	Format  string `help:"Output format, yaml or csv (default from config)"`
	Limit   int    `short:"n" help:"Only emit the top N entries (0 = all)"`
	Since   string `help:"Only count commits at or after this time"`
	Until   string `help:"Only count commits strictly before this time"`
	Workers int    `help:"Worker pool size (0 = one per CPU)"`
}

// Run executes the analyze scores command.
func (c *ScoresCmd) Run(g *Globals) error {
	engine, err := loadEngine(g)
	if err != nil {
		return err
	}

	window, err := g.window(c.Since, c.Until)
	if err != nil {
		return err
	}

	opts := score.DefaultOptions()
	opts.Window = window
	opts.Workers = firstNonZero(c.Workers, g.cfg.Workers)

	res, err := engine.TriggerScores(c.Root, opts)
	if err != nil {
		return err
	}

	return render.Write(os.Stdout, res, g.outputFormat(c.Format), c.Limit)
}

// UniqueCmd computes the per-child exclusive-trigger ranking.
type UniqueCmd struct {
	Root       string `arg:"" help:"Root target whose direct children are ranked"`
	Format     string `help:"Output format, yaml or csv (default from config)"`
	Limit      int    `short:"n" help:"Only emit the top N entries (0 = all)"`
	Since      string `help:"Only count commits at or after this time"`
	Until      string `help:"Only count commits strictly before this time"`
	NoOwnFiles bool   `help:"Exclude a child's directly attached files from its score"`
}

// Run executes the analyze unique command.
func (c *UniqueCmd) Run(g *Globals) error {
	engine, err := loadEngine(g)
	if err != nil {
		return err
	}

	window, err := g.window(c.Since, c.Until)
	if err != nil {
		return err
	}

	opts := score.DefaultOptions()
	opts.Window = window
	if g.cfg.IncludeOwnFiles != nil {
		opts.IncludeOwnFiles = *g.cfg.IncludeOwnFiles
	}
	if c.NoOwnFiles {
		opts.IncludeOwnFiles = false
	}

	res, err := engine.MostUniqueTriggers(c.Root, opts)
	if err != nil {
		return err
	}

	return render.Write(os.Stdout, res, g.outputFormat(c.Format), c.Limit)
}

// RemovableCmd finds dependencies of a target that contribute no exclusive
// triggers and, unless running dry, verifies each candidate by removing it
// and running the test targets.
type RemovableCmd struct {
	Root   string   `arg:"" help:"Target whose dependencies are examined"`
	Test   []string `help:"Test targets that must pass without the candidate"`
	DryRun bool     `help:"Only report candidates, never touch BUILD files"`
}

// Run executes the removable command.
func (c *RemovableCmd) Run(g *Globals) error {
	ctx := context.Background()
	engine, err := loadEngine(g)
	if err != nil {
		return err
	}

	res, err := engine.MostUniqueTriggers(c.Root, score.DefaultOptions())
	if err != nil {
		return err
	}

	var candidates []string
	for _, e := range res.Entries {
		if e.Score == 0 {
			candidates = append(candidates, e.Label)
		}
	}

	if len(candidates) == 0 {
		color.Green("✓ No removable dependency candidates for %s", c.Root)
		return nil
	}

	fmt.Printf("Candidates with no exclusive triggers (%d):\n", len(candidates))
	for _, dep := range candidates {
		fmt.Printf("  %s\n", dep)
	}

	if c.DryRun {
		return nil
	}
	if len(c.Test) == 0 {
		return fmt.Errorf("verification needs at least one --test target (or use --dry-run)")
	}

	runner := buildozer.NewRunner(g.Workspace, g.log)
	removable := 0
	for _, dep := range candidates {
		passed, err := runner.TestPassesWithoutDep(ctx, c.Root, dep, c.Test)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", dep, err)
		}
		if passed {
			removable++
			color.Green("✓ %s is removable", dep)
		} else {
			color.Yellow("✗ %s is still needed (tests fail without it)", dep)
		}
	}

	fmt.Printf("\n%d of %d candidates verified removable\n", removable, len(candidates))
	return nil
}

// WatchCmd re-runs graph precalculation whenever build definitions change,
// optionally re-printing the score ranking afterwards.
type WatchCmd struct {
	Target string `arg:"" optional:"" default:"//..." help:"Universe target for the dependency query"`
	Root   string `help:"Re-run analyze scores for this root after each change"`
	Limit  int    `short:"n" default:"10" help:"Entries to show after each rerun"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-osSignalChannel()
		fmt.Fprintln(os.Stderr, "\nStopping watch mode...")
		cancel()
	}()

	rerun := func(ctx context.Context, changed []string) error {
		for _, path := range changed {
			g.log.Debug("changed", "path", path)
		}

		graph, err := bazel.QueryDeps(ctx, g.Workspace, c.Target)
		if err != nil {
			return err
		}

		store, graphName, historyName, closeStore, err := g.openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.SaveGraph(graphName, graph); err != nil {
			return err
		}
		color.Green("✓ Graph snapshot refreshed (%d targets)", graph.TargetCount())

		if c.Root == "" {
			return nil
		}
		hist, err := store.LoadHistory(historyName)
		if err != nil {
			return fmt.Errorf("loading history snapshot: %w", err)
		}
		res, err := score.New(graph, hist).TriggerScores(c.Root, score.DefaultOptions())
		if err != nil {
			return err
		}
		return render.Write(os.Stdout, res, g.outputFormat(""), c.Limit)
	}

	err := watch.New(g.Workspace, g.log).Run(ctx, rerun)
	if err == context.Canceled {
		return nil
	}
	return err
}

// StatusCmd reports what snapshots exist and their header metadata.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	if g.Registry {
		store, err := snapshot.OpenBadgerStore(filepath.Join(g.SnapshotDir, registryDirName))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entries, err := store.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Registry is empty. Run 'triggerscope precalculate' first.")
			return nil
		}
		fmt.Printf("Snapshot registry at %s:\n", g.SnapshotDir)
		for _, e := range entries {
			fmt.Printf("  %-12s %-8s %d bytes\n", e.Name, e.Kind, e.Size)
		}
		return nil
	}

	found := false
	for _, name := range []string{graphSnapshotFile, historySnapshotFile} {
		path := filepath.Join(g.SnapshotDir, name)
		info, err := snapshot.Describe(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			fmt.Printf("  %-14s unreadable: %v\n", name, err)
			found = true
			continue
		}
		found = true
		fmt.Printf("  %-14s kind=%s version=%d payload=%d bytes\n",
			name, info.Kind, info.Version, info.PayloadLen)
	}
	if !found {
		fmt.Printf("No snapshots in %s. Run 'triggerscope precalculate' first.\n", g.SnapshotDir)
	}
	return nil
}

// Shared helpers.

// loadEngine loads both snapshots and builds a scoring engine over them.
func loadEngine(g *Globals) (*score.Engine, error) {
	store, graphName, historyName, closeStore, err := g.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	graph, err := store.LoadGraph(graphName)
	if err != nil {
		return nil, fmt.Errorf("loading graph snapshot (run 'triggerscope precalculate graph' first): %w", err)
	}
	hist, err := store.LoadHistory(historyName)
	if err != nil {
		return nil, fmt.Errorf("loading history snapshot (run 'triggerscope precalculate history' first): %w", err)
	}
	return score.New(graph, hist), nil
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// osSignalChannel returns a channel that receives OS signals for graceful
// shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	Precalculate PrecalculateCmd `cmd:"" help:"Build and store graph or history snapshots"`
	Analyze      AnalyzeCmd      `cmd:"" help:"Score targets from the stored snapshots"`
	Removable    RemovableCmd    `cmd:"" help:"Find and verify removable dependencies"`
	Watch        WatchCmd        `cmd:"" help:"Refresh the graph snapshot on build file changes"`
	Status       StatusCmd       `cmd:"" help:"Show stored snapshot metadata"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("triggerscope"),
		kong.Description("Rebuild-trigger scoring for bazel dependency graphs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	if err := c.Globals.setup(); err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
