// Package orchestrator wires the Watcher, Classifier, Extractor, Spool,
// baseline comparison and failed-file registry into a single cooperative
// loop: every artifact the Finalizer judges Ready is classified, and if
// it is a QC run, extracted and enqueued for delivery. The Orchestrator
// never retries a failed extraction itself — that is a user-initiated
// operation against the failed-file registry.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/baseline"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/classifier"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/extractor"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/failedfiles"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/log"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/metrics"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/spool"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/types"
	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/watcher"
)

// Instrument binds one configured instrument to its running Watcher.
type Instrument struct {
	ID        string
	WatchPath string
	Watcher   *watcher.Watcher
}

// Config supplies the Orchestrator its agent identity and every
// collaborator it drives.
type Config struct {
	AgentID      string
	AgentVersion string
	Instruments  []Instrument
	Extractor    *extractor.Extractor
	Spool        *spool.Spool
	FailedFiles  *failedfiles.Store
	Baselines    *baseline.Manager
}

// Orchestrator is the pipeline's single cooperative owner.
type Orchestrator struct {
	cfg Config
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// readyEvent pairs a Ready artifact with the instrument it came from.
type readyEvent struct {
	instrument Instrument
	file       *types.TrackedFile
}

// Run starts every instrument's Watcher and the single dispatch loop.
// It blocks until ctx is cancelled, at which point every Watcher is torn
// down alongside it.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	var wg sync.WaitGroup
	fanIn := make(chan readyEvent, 64)

	for _, inst := range o.cfg.Instruments {
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inst.Watcher.Run(ctx); err != nil {
				logger.Error().Err(err).Str("instrument", inst.ID).Msg("watcher exited")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			ready := inst.Watcher.Tracker().Ready()
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-ready:
					if !ok {
						return
					}
					select {
					case fanIn <- readyEvent{instrument: inst, file: f}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case ev := <-fanIn:
			o.handle(ctx, ev)
		}
	}
}

// handle implements the five-step dispatch the spec assigns to the
// Orchestrator for each finalized-artifact notification.
func (o *Orchestrator) handle(ctx context.Context, ev readyEvent) {
	logger := log.FromContext(ctx).With().
		Str("instrument", ev.instrument.ID).
		Str("path", ev.file.Path).
		Logger()

	tracker := ev.instrument.Watcher.Tracker()

	// Step 1: locate the owning instrument. The fan-in goroutine already
	// pairs the event with its instrument, but the path-prefix check is
	// kept as a defensive sanity check against cross-wired configs.
	if !strings.HasPrefix(ev.file.Path, ev.instrument.WatchPath) {
		logger.Error().Msg("artifact path does not belong to its reporting instrument, dropping")
		return
	}

	metrics.ObserveFinalization(ev.instrument.ID, string(ev.file.Vendor), ev.file.FirstSeen)

	// Step 2: classify.
	classification, err := classifier.Classify(ev.file.Path, ev.instrument.ID)
	if err != nil {
		o.fail(ctx, tracker, ev, "classification", err)
		return
	}

	// Step 3: non-QC runs (Sample or Blank) never produce a payload.
	if !classification.ControlType.IsDeliverable() {
		logger.Info().Str("control_type", string(classification.ControlType)).Msg("non-QC run, skipping extraction")
		tracker.MarkDone(ev.file.Path)
		return
	}

	// Step 4: invoke the extractor.
	extractStart := time.Now()
	result, err := o.cfg.Extractor.Extract(ctx, ev.file.Path)
	if err != nil {
		metrics.ObserveExtraction(ev.instrument.ID, string(ev.file.Vendor), "failure", time.Since(extractStart))
		o.fail(ctx, tracker, ev, "extraction", err)
		return
	}
	metrics.ObserveExtraction(ev.instrument.ID, string(ev.file.Vendor), "success", time.Since(extractStart))
	metrics.TargetRecoveryPct.WithLabelValues(ev.instrument.ID).Observe(result.RunMetrics.TargetRecoveryPct)

	payload := o.buildPayload(ev.instrument.ID, ev.file.Vendor, classification, result)

	// Step 5: enqueue into the spool.
	if _, err := o.cfg.Spool.Enqueue(ctx, payload); err != nil {
		o.fail(ctx, tracker, ev, "spool_enqueue", err)
		return
	}

	o.cfg.FailedFiles.MarkSuccess(ctx, ev.file.Path)
	tracker.MarkDone(ev.file.Path)
	logger.Info().Str("run_id", payload.Run.RunID.String()).Msg("artifact delivered to spool")
}

func (o *Orchestrator) fail(ctx context.Context, tracker interface{ MarkFailed(string) }, ev readyEvent, reason string, err error) {
	logger := log.FromContext(ctx)
	logger.Error().Err(err).Str("path", ev.file.Path).Str("reason", reason).Msg("artifact pipeline stage failed")
	metrics.ArtifactsFailedTotal.WithLabelValues(ev.instrument.ID, string(ev.file.Vendor), reason).Inc()
	o.cfg.FailedFiles.RecordFailure(ctx, ev.file.Path, ev.instrument.ID, reason)
	tracker.MarkFailed(ev.file.Path)
}

// buildPayload assembles the delivery envelope from a classification and
// an extraction result, attaching a baseline comparison when an Active
// baseline is cached for the instrument.
func (o *Orchestrator) buildPayload(instrumentID string, vendor types.Vendor, classification types.Classification, result *types.ExtractionResult) *types.Payload {
	wellStr := ""
	if classification.WellPosition != nil {
		wellStr = classification.WellPosition.String()
	}

	payload := &types.Payload{
		SchemaVersion: types.SchemaVersion,
		PayloadID:     uuid.New(),
		AgentID:       o.cfg.AgentID,
		AgentVersion:  o.cfg.AgentVersion,
		Timestamp:     time.Now().UTC(),
		Run: types.RunInfo{
			RunID:                    result.RunID,
			RawFileName:              result.RawFileName,
			RawFileHash:              result.RawFileHash,
			InstrumentID:             instrumentID,
			Vendor:                   vendor,
			ControlType:              classification.ControlType,
			WellPosition:             wellStr,
			PlateID:                  classification.PlateID,
			ClassificationConfidence: classification.Confidence,
			ClassificationSource:     classification.Source,
		},
		Extraction: types.ExtractionInfo{
			ExtractorName:    result.ExtractorName,
			ExtractorVersion: result.ExtractorVersion,
			TemplateName:     result.TemplateName,
			TemplateHash:     result.TemplateHash,
			ExtractionTimeMs: result.ExtractionTime.Milliseconds(),
			Status:           "success",
		},
		TargetMetrics: result.TargetMetrics,
		RunMetrics:    result.RunMetrics,
	}

	if b, ok := o.cfg.Baselines.GetActive(instrumentID); ok && b.State == types.BaselineActive {
		cmp := baseline.Comparison(result.TargetMetrics, b)
		metrics.BaselineOutliersTotal.WithLabelValues(instrumentID).Add(float64(len(cmp.OutlierTargets)))
		payload.Baseline = &types.BaselineContext{
			BaselineID:           b.BaselineID,
			BaselineEstablished:  b.Established,
			BaselineTemplateHash: b.TemplateHash,
		}
		payload.Comparison = &types.ComparisonMetrics{VsBaseline: cmp}
	}

	return payload
}
