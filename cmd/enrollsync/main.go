// Command enrollsync reconciles batches of enrollment notices into policy
// actions and their outbound confirmations.
package main

import (
	"fmt"
	"os"

	"github.com/ideacrew/gluedb-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
