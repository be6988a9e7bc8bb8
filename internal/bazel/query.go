// Package bazel invokes the build tool's query command and hands the raw
// record stream to graph ingestion. It owns no parsing beyond process
// plumbing; record decoding lives in buildgraph.
package bazel

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/triggerscope/triggerscope/internal/buildgraph"
)

// QueryDeps runs `bazel query "deps(target)" --output streamed_jsonproto`
// in the workspace and ingests the resulting stream into a dependency
// graph.
func QueryDeps(ctx context.Context, workspace, target string) (*buildgraph.DependencyGraph, error) {
	cmd := exec.CommandContext(ctx, "bazel",
		"query",
		fmt.Sprintf("deps(%s)", target),
		"--output", "streamed_jsonproto")
	cmd.Dir = workspace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("bazel query for %s: %w (%s)", target, err, firstLine(stderr.Bytes()))
	}

	g, err := buildgraph.Ingest(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("ingesting bazel query output for %s: %w", target, err)
	}
	return g, nil
}

// IngestFile ingests a pre-captured query output file.
func IngestFile(path string) (*buildgraph.DependencyGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query output %s: %w", path, err)
	}
	defer f.Close()

	g, err := buildgraph.Ingest(f)
	if err != nil {
		return nil, fmt.Errorf("ingesting query output %s: %w", path, err)
	}
	return g, nil
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}
