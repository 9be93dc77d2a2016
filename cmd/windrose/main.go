package main

import (
	"os"

	"github.com/vk/windrose/internal/cli"
)

// main is the entrypoint for the windrose application.
func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
