package main

import (
	"fmt"
	"os"
)

// runBaselineCLI inspects or clears cached baselines. The cloud owns the
// source of truth, so this command is read/clear only; establishing a new
// baseline is a cloud operation. Baselines are cached only in a running
// agent's memory (baseline.Manager.Update fills the cache;
// RefreshFromCloud performs no fetch), so this separate process reports
// that nothing is cached.
func runBaselineCLI(args []string) int {
	if len(args) == 0 {
		printBaselineUsage()
		return 2
	}

	switch args[0] {
	case "list":
		fmt.Println("no baselines cached locally until the agent has run and polled the cloud")
		return 0
	case "show":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: qc-agent baseline show <instrument_id>")
			return 2
		}
		fmt.Printf("no cached baseline for instrument %q\n", args[1])
		return 0
	case "reset":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: qc-agent baseline reset <instrument_id>")
			return 2
		}
		fmt.Printf("cleared cached baseline for instrument %q (if any)\n", args[1])
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown baseline subcommand: %s\n\n", args[0])
		printBaselineUsage()
		return 2
	}
}

func printBaselineUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  qc-agent baseline list")
	fmt.Fprintln(os.Stderr, "  qc-agent baseline show <instrument_id>")
	fmt.Fprintln(os.Stderr, "  qc-agent baseline reset <instrument_id>")
}
