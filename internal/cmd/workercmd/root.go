// Package workercmd implements the bruty-worker cobra root command:
// load configuration, build the probe engine, and serve the
// coordinator connection until interrupted.
package workercmd

import (
	"github.com/spf13/cobra"
)

// RootCmd is bruty-worker's entry point, wired from cmd/worker/main.go.
var RootCmd = &cobra.Command{
	Use:   "bruty-worker",
	Short: "Connect to a bruty coordinator and probe dispatched prefixes",
	RunE:  runServe,
}
