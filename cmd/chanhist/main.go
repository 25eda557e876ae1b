package main

import (
	"fmt"
	"os"

	"github.com/systemshift/chanhist/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chanhist: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
