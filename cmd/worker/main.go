// Command bruty-worker connects to a bruty coordinator, probes
// dispatched prefixes against the configured oracle, and reports
// results back over the WebSocket protocol.
package main

import (
	"fmt"
	"os"

	"github.com/skifli/bruty/internal/cmd/workercmd"
)

func main() {
	if err := workercmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
