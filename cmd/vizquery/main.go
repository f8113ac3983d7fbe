package main

import (
	"fmt"
	"os"

	"vizquery/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintln(os.Stderr, "vizquery:", err)
		os.Exit(1)
	}
}
