// Command agent is the on-instrument QC telemetry service: it watches
// configured instrument directories, finalizes and classifies completed
// acquisitions, extracts per-target metrics, and delivers the resulting
// payloads to the cloud ingest endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = runRun(os.Args[2:])
	case "doctor":
		code = runDoctor(os.Args[2:])
	case "classify":
		code = runClassify(os.Args[2:])
	case "status":
		code = runStatus(os.Args[2:])
	case "baseline":
		code = runBaselineCLI(os.Args[2:])
	case "config":
		code = runConfigCLI(os.Args[2:])
	case "failed":
		code = runFailedCLI(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		code = 0
	case "version", "--version":
		fmt.Printf("qc-agent %s (%s)\n", version, commit)
		code = 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		code = 2
	}

	os.Exit(code)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: qc-agent <command> [flags]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run [--config path] [--foreground]   start the agent service")
	fmt.Fprintln(os.Stderr, "  doctor [--config path]                verify config and environment, exit nonzero on problems")
	fmt.Fprintln(os.Stderr, "  classify <path>                        classify a single artifact path and print the result")
	fmt.Fprintln(os.Stderr, "  status [--config path]                 print spool depth, failed-file count and instruments")
	fmt.Fprintln(os.Stderr, "  baseline {list|show|reset} [...]       inspect or clear cached baselines")
	fmt.Fprintln(os.Stderr, "  config {validate|show|path} [...]      inspect the resolved configuration")
	fmt.Fprintln(os.Stderr, "  failed {list|retry|clear} [...]        inspect or retry the failed-file registry")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, mirroring
// the daemon's graceful-shutdown entry point.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fatal(err error) int {
	log.L().Error().Err(err).Msg("fatal error")
	return 1
}
