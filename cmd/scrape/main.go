// Package main is the single-binary entrypoint for scrape.
package main

import "github.com/scrape-network/scrape/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
