// Package main provides the entry point for the goshctl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gosh-sh/gosh-sub009/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
