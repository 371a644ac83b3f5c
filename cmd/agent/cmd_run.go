package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/baseline"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/config"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/extractor"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/failedfiles"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/finalizer"
	xlog "github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/orchestrator"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/paths"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/spool"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/uploader"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/watcher"
)

func runRun(args []string) int {
	fs := flag.NewFlagSet("qc-agent run", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the agent's TOML configuration file")
	_ = fs.Bool("foreground", true, "run attached to the controlling terminal (the only supported mode; present for CLI parity with the Windows service shell)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fatal(err)
	}

	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "qc-agent", Version: version})
	logger := xlog.WithComponent("run")

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

	ff, err := failedfiles.Open(layout.FailedFilesPath())
	if err != nil {
		return fatal(err)
	}

	ex := extractor.New(extractor.Config{
		BinaryPath:   cfg.Extractor.BinaryPath,
		TemplatePath: cfg.Extractor.TemplatePath,
		WorkDir:      layout.ExtractorWorkDir(),
		Timeout:      time.Duration(cfg.Extractor.TimeoutMinutes) * time.Minute,
	})

	baselines := baseline.NewManager()

	instruments := make([]orchestrator.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		if !ic.Enabled {
			continue
		}
		vendor, ok := types.ParseVendor(ic.Vendor)
		if !ok {
			return fatal(fmt.Errorf("instrument %q: unknown vendor %q", ic.ID, ic.Vendor))
		}

		w := watcher.New(watcher.Config{
			InstrumentID: ic.ID,
			WatchPath:    ic.WatchPath,
			Vendor:       vendor,
			FilePattern:  ic.FilePattern,
			ScanInterval: cfg.Watcher.ScanInterval(),
			FinalizerConfig: finalizer.Config{
				TickInterval:         5 * time.Second,
				StabilityWindow:      cfg.Watcher.StabilityWindow(),
				StabilizationTimeout: cfg.Watcher.StabilizationTimeout(),
				ProcessingTimeout:    cfg.Watcher.ProcessingTimeout(),
			},
		})

		instruments = append(instruments, orchestrator.Instrument{
			ID:        ic.ID,
			WatchPath: ic.WatchPath,
			Watcher:   w,
		})
	}

	orch := orchestrator.New(orchestrator.Config{
		AgentID:      cfg.AgentID,
		AgentVersion: version,
		Instruments:  instruments,
		Extractor:    ex,
		Spool:        sp,
		FailedFiles:  ff,
		Baselines:    baselines,
	})

	up, err := uploader.New(uploader.Config{
		Endpoint:       cfg.Cloud.Endpoint,
		BearerToken:    cfg.Cloud.BearerToken,
		ClientCertPath: cfg.Cloud.ClientCertPath,
		ClientKeyPath:  cfg.Cloud.ClientKeyPath,
		ProxyURL:       cfg.Cloud.ProxyURL,
	}, sp)
	if err != nil {
		return fatal(err)
	}

	ctx, stop := signalContext()
	defer stop()

	errs := make(chan error, 2)
	go func() { errs <- orch.Run(ctx) }()
	go func() { errs <- up.Run(ctx) }()

	srv := &http.Server{Addr: ":9464", Handler: statusRouter()}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("status/metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("status server failed")
		}
	}()

	logger.Info().Str("agent_id", cfg.AgentID).Int("instruments", len(instruments)).Msg("agent started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, stopping")
	_ = srv.Close()

	for i := 0; i < 2; i++ {
		<-errs
	}

	return 0
}

func statusRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func defaultConfigPath() string {
	if p := os.Getenv("QC_AGENT_CONFIG"); p != "" {
		return p
	}
	return "/etc/qc-agent/config.toml"
}
