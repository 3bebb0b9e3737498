// Command bruty-coordinator runs the enumeration coordinator: prefix
// enumeration, watermark persistence, and worker dispatch over the
// WebSocket protocol.
package main

import (
	"fmt"
	"os"

	"github.com/skifli/bruty/internal/cmd/coordinatorcmd"
)

func main() {
	if err := coordinatorcmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
