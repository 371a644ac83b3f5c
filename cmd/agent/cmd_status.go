package main

import (
	"flag"
	"fmt"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/config"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/failedfiles"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/paths"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/spool"
)

// runStatus prints a point-in-time snapshot of the spool and failed-file
// registry without starting any watcher; it reads the same durable state
// a running agent would, so it is safe to run alongside the service.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("qc-agent status", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the agent's TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fatal(err)
	}

	layout := paths.NewLayout(cfg.DataDir)

	sp, err := spool.New(spool.Config{
		RootDir:              layout.SpoolDir(),
		MaxPendingBytes:      cfg.Spool.MaxPendingBytes(),
		MaxAge:               cfg.Spool.MaxAge(),
		CompletedRetainCount: cfg.Spool.CompletedRetentionCount,
	}, cfg.AgentID)
	if err != nil {
		return fatal(err)
	}

	pending, _ := sp.Pending()
	fmt.Printf("spool pending:   %d\n", len(pending))

	ff, err := failedfiles.Open(layout.FailedFilesPath())
	if err != nil {
		return fatal(err)
	}
	fmt.Printf("failed files:    %d\n", ff.Count())

	fmt.Printf("instruments:     %d configured\n", len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		state := "enabled"
		if !inst.Enabled {
			state = "disabled"
		}
		fmt.Printf("  - %-16s vendor=%-8s %s\n", inst.ID, inst.Vendor, state)
	}

	return 0
}
