// Command cronkeep runs idempotent daily and hourly jobs from a minute
// trigger, remembering the last completed period of each job.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"
)

// Set by release ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
