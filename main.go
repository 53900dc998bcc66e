// Command fetcher is the entry point for the resumable, multi-protocol data
// acquisition engine. It delegates to cli.RootCmd, whose "run" subcommand
// wires a FetcherRecipe from a named config and drives it to completion.
package main

import (
	"github.com/ocfetch/fetcher/cli"
)

func main() {
	cli.Execute()
}
