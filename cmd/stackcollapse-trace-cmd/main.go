package main

import (
	"os"

	"github.com/spf13/pflag"

	"tracecmd-collapse/internal/cmd"
)

func main() {
	flags := pflag.NewFlagSet("stackcollapse-trace-cmd", pflag.ExitOnError)
	pflag.CommandLine = flags

	root := cmd.NewCollapseCommand(cmd.StdStreams())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
