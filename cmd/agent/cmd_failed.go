package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/config"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/failedfiles"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/paths"
)

// runFailedCLI inspects or retries the failed-file registry. The
// registry is a UX affordance only — the pipeline itself never consults
// it — so "retry" works by nudging the artifact's mtime so the watcher's
// own admission logic picks it up again on the next scan or event.
func runFailedCLI(args []string) int {
	if len(args) == 0 {
		printFailedUsage()
		return 2
	}

	switch args[0] {
	case "list":
		return runFailedList(args[1:])
	case "retry":
		return runFailedRetry(args[1:])
	case "clear":
		return runFailedClear(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown failed subcommand: %s\n\n", args[0])
		printFailedUsage()
		return 2
	}
}

func openFailedStore(configPath string) (*failedfiles.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	layout := paths.NewLayout(cfg.DataDir)
	return failedfiles.Open(layout.FailedFilesPath())
}

func runFailedList(args []string) int {
	fs := flag.NewFlagSet("qc-agent failed list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the agent's TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := openFailedStore(*configPath)
	if err != nil {
		return fatal(err)
	}

	entries := store.All()
	if len(entries) == 0 {
		fmt.Println("no failed files recorded")
		return 0
	}
	for _, e := range entries {
		fmt.Printf("%-8s %-20s retries=%-3d %-20s %s\n",
			e.InstrumentID, e.FailedAt.Format(time.RFC3339), e.RetryCount, e.Reason, e.Path)
	}
	return 0
}

func runFailedRetry(args []string) int {
	fs := flag.NewFlagSet("qc-agent failed retry", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the agent's TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: qc-agent failed retry [--config path] <path>")
		return 2
	}
	target := fs.Arg(0)

	store, err := openFailedStore(*configPath)
	if err != nil {
		return fatal(err)
	}

	if _, ok := store.GetForRetry(context.Background(), target); !ok {
		fmt.Fprintf(os.Stderr, "no failed-file entry for %q\n", target)
		return 1
	}

	now := time.Now()
	if err := os.Chtimes(target, now, now); err != nil {
		fmt.Fprintf(os.Stderr, "could not nudge mtime on %q: %v\n", target, err)
		fmt.Fprintln(os.Stderr, "the retry counter was still incremented; re-admit it manually if needed")
		return 1
	}

	fmt.Printf("nudged %q; the watcher will re-admit it on its next scan or event\n", target)
	return 0
}

func runFailedClear(args []string) int {
	fs := flag.NewFlagSet("qc-agent failed clear", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the agent's TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := openFailedStore(*configPath)
	if err != nil {
		return fatal(err)
	}

	n := store.Count()
	store.Clear(context.Background())
	fmt.Printf("cleared %d entries\n", n)
	return 0
}

func printFailedUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  qc-agent failed list [--config path]")
	fmt.Fprintln(os.Stderr, "  qc-agent failed retry [--config path] <path>")
	fmt.Fprintln(os.Stderr, "  qc-agent failed clear [--config path]")
}
