// Package main is the entry point for actionq.
// This is a thin wrapper around the cli package.
package main

import (
	"os"

	"github.com/zot/actionq/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
