// Package main provides the multibuild command-line entry point.
package main

import (
	"os"

	"github.com/leapstack-labs/multibuild/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
