package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/config"
)

// runDoctor loads and validates the configuration and checks that the
// extractor backend, template and every instrument's watch path are
// actually reachable, so operators get a single pre-flight command
// instead of discovering problems from service logs.
func runDoctor(args []string) int {
	fs := flag.NewFlagSet("qc-agent doctor", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the agent's TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	fmt.Println("config: OK")

	problems := 0

	if _, err := os.Stat(cfg.Extractor.BinaryPath); err != nil {
		fmt.Printf("extractor binary: FAIL (%v)\n", err)
		problems++
	} else {
		fmt.Println("extractor binary: OK")
	}

	if _, err := os.Stat(cfg.Extractor.TemplatePath); err != nil {
		fmt.Printf("extractor template: FAIL (%v)\n", err)
		problems++
	} else {
		fmt.Println("extractor template: OK")
	}

	for _, inst := range cfg.Instruments {
		if !inst.Enabled {
			fmt.Printf("instrument %s: SKIPPED (disabled)\n", inst.ID)
			continue
		}
		if _, err := os.Stat(inst.WatchPath); err != nil {
			fmt.Printf("instrument %s watch path: FAIL (%v)\n", inst.ID, err)
			problems++
		} else {
			fmt.Printf("instrument %s watch path: OK\n", inst.ID)
		}
	}

	if cfg.Cloud.BearerToken == "" && cfg.Cloud.ClientCertPath == "" {
		fmt.Println("cloud auth: WARN (neither QC_AGENT_CLOUD_TOKEN nor a client certificate is configured)")
	} else {
		fmt.Println("cloud auth: OK")
	}

	if problems > 0 {
		fmt.Printf("\n%d problem(s) found\n", problems)
		return 1
	}
	fmt.Println("\nall checks passed")
	return 0
}
