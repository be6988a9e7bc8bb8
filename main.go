// Triggerscope - rebuild-trigger scoring for bazel dependency graphs.
//
// Triggerscope ingests a monorepo's dependency graph and git change
// history, then ranks targets by how often and how widely they trigger
// rebuilds, pointing at the dependency edges worth breaking.
package main

import (
	"fmt"
	"os"

	"github.com/triggerscope/triggerscope/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
