// Package coordinatorcmd implements the bruty-coordinator cobra root
// command: load configuration, open the persistence backend, build
// the enumerator/reconciler/session pipeline, and serve the HTTP side
// channel until interrupted.
package coordinatorcmd

import (
	"github.com/spf13/cobra"
)

var configPath string

// RootCmd is bruty-coordinator's entry point, wired from cmd/coordinator/main.go.
var RootCmd = &cobra.Command{
	Use:   "bruty-coordinator",
	Short: "Run the bruty coordinator: dispatch enumeration work to connected workers",
	RunE:  runServe,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "ignored: bruty.yaml is always discovered from the project root")
}
