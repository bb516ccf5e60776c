// Command witnessgen drives sealed batches through the proof aggregation
// rounds.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/witnessgen/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
