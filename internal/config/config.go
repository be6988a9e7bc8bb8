// Package config loads the optional .triggerscope.toml project file.
// Every field has a flag counterpart; flags win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the project configuration file looked up in the workspace.
const FileName = ".triggerscope.toml"

// Config holds the file-level defaults for analysis runs.
type Config struct {
	// Format selects the output format, "yaml" or "csv".
	Format string `toml:"format"`

	// Workers bounds the scoring worker pool. Zero means GOMAXPROCS.
	Workers int `toml:"workers"`

	// IncludeOwnFiles controls whether a child's directly attached files
	// count toward its unique-trigger score.
	IncludeOwnFiles *bool `toml:"include_own_files"`

	// Since restricts history to commits at or after this time (RFC 3339).
	Since string `toml:"since"`

	// Until restricts history to commits strictly before this time.
	Until string `toml:"until"`

	// SnapshotDir is where precalculated snapshots are stored.
	SnapshotDir string `toml:"snapshot_dir"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Format:      "yaml",
		SnapshotDir: ".triggerscope",
	}
}

// Load reads the configuration file under dir. A missing file is not an
// error; defaults are returned.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, FileName)
	meta, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("loading %s: unknown key %q", path, undecoded[0].String())
	}

	if cfg.Format != "yaml" && cfg.Format != "csv" {
		return cfg, fmt.Errorf("loading %s: format must be yaml or csv, got %q", path, cfg.Format)
	}
	if _, err := cfg.SinceTime(); err != nil {
		return cfg, fmt.Errorf("loading %s: %w", path, err)
	}
	if _, err := cfg.UntilTime(); err != nil {
		return cfg, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// SinceTime parses the since field. Zero time when unset.
func (c Config) SinceTime() (time.Time, error) {
	return parseTime("since", c.Since)
}

// UntilTime parses the until field. Zero time when unset.
func (c Config) UntilTime() (time.Time, error) {
	return parseTime("until", c.Until)
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// Date-only is the common case in a config file.
		t, err = time.Parse("2006-01-02", value)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s %q: %w", field, value, err)
	}
	return t.UTC(), nil
}
