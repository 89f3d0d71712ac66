// Package main provides a command-line Monte Carlo simulator for a portfolio
// file or the dashboard's stored portfolio.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	commander.Register(&runCmd{}, "")
	commander.Register(&horizonsCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
