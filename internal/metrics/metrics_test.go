package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestArtifactsDetectedTotal_IncrementsPerVendor(t *testing.T) {
	ArtifactsDetectedTotal.Reset()

	ArtifactsDetectedTotal.WithLabelValues("inst-1", "thermo").Inc()
	ArtifactsDetectedTotal.WithLabelValues("inst-1", "thermo").Inc()
	ArtifactsDetectedTotal.WithLabelValues("inst-1", "bruker").Inc()

	if got := testutil.ToFloat64(ArtifactsDetectedTotal.WithLabelValues("inst-1", "thermo")); got != 2 {
		t.Errorf("expected 2, got %f", got)
	}
	if got := testutil.ToFloat64(ArtifactsDetectedTotal.WithLabelValues("inst-1", "bruker")); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
}

func TestObserveFinalization_RecordsDuration(t *testing.T) {
	FinalizationDuration.Reset()

	ObserveFinalization("inst-1", "thermo", time.Now().Add(-5*time.Second))

	if count := testutil.CollectAndCount(FinalizationDuration); count == 0 {
		t.Error("expected an observation, got 0")
	}
}

func TestObserveExtraction_RecordsDurationAndOutcome(t *testing.T) {
	ExtractionDuration.Reset()
	ExtractionOutcomeTotal.Reset()

	ObserveExtraction("inst-1", "sciex", "success", 2*time.Second)

	if count := testutil.CollectAndCount(ExtractionDuration); count == 0 {
		t.Error("expected a duration observation, got 0")
	}
	if got := testutil.ToFloat64(ExtractionOutcomeTotal.WithLabelValues("inst-1", "sciex", "success")); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
}

func TestSpoolDepth_SetsGaugePerDirectory(t *testing.T) {
	SpoolDepth.Reset()

	SpoolDepth.WithLabelValues("pending").Set(3)
	SpoolDepth.WithLabelValues("failed").Set(1)

	if got := testutil.ToFloat64(SpoolDepth.WithLabelValues("pending")); got != 3 {
		t.Errorf("expected 3, got %f", got)
	}
	if got := testutil.ToFloat64(SpoolDepth.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
}

func TestUploadLadderExhaustedTotal_Increments(t *testing.T) {
	before := testutil.ToFloat64(UploadLadderExhaustedTotal)
	UploadLadderExhaustedTotal.Inc()
	after := testutil.ToFloat64(UploadLadderExhaustedTotal)

	if after != before+1 {
		t.Errorf("expected increment of 1, got %f -> %f", before, after)
	}
}

func TestMetricNames_AreRegisterable(t *testing.T) {
	tests := []struct {
		name       string
		metric     prometheus.Collector
		wantFamily string
	}{
		{"ArtifactsDetectedTotal", ArtifactsDetectedTotal, "qc_agent_artifacts_detected_total"},
		{"SpoolDepth", SpoolDepth, "qc_agent_spool_depth"},
		{"UploadAttemptsTotal", UploadAttemptsTotal, "qc_agent_upload_attempts_total"},
		{"FailedFilesCount", FailedFilesCount, "qc_agent_failed_files_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			reg.MustRegister(tt.metric)

			families, err := reg.Gather()
			if err != nil {
				t.Fatalf("gather failed: %v", err)
			}

			found := false
			for _, f := range families {
				if f.GetName() == tt.wantFamily {
					found = true
				}
			}
			if !found {
				t.Errorf("expected metric family %s not found", tt.wantFamily)
			}
		})
	}
}
