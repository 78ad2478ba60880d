// Command aiemployee triages inbound messages into tracked action items.
package main

import (
	"fmt"
	"os"

	"github.com/khanzadigithubid/AI-Employee-System/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
