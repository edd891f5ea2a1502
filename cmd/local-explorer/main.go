package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oneyeking31/local-explorer/commands"
)

var (
	version = "snapshot"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := commands.New(fmt.Sprintf("%s-%s (built %s)", version, commit, date))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
