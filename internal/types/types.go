// Package types holds the core data model shared across the acquisition,
// classification, and delivery pipeline.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Vendor identifies the instrument manufacturer that produced an artifact.
type Vendor string

const (
	VendorThermo  Vendor = "thermo"
	VendorBruker  Vendor = "bruker"
	VendorSciex   Vendor = "sciex"
	VendorWaters  Vendor = "waters"
	VendorAgilent Vendor = "agilent"
)

// IsDirectoryFormat reports whether this vendor's artifacts are directories
// rather than single files.
func (v Vendor) IsDirectoryFormat() bool {
	switch v {
	case VendorBruker, VendorWaters, VendorAgilent:
		return true
	default:
		return false
	}
}

// ParseVendor parses a vendor name case-insensitively.
func ParseVendor(s string) (Vendor, bool) {
	switch Vendor(lowerASCII(s)) {
	case VendorThermo, VendorBruker, VendorSciex, VendorWaters, VendorAgilent:
		return Vendor(lowerASCII(s)), true
	default:
		return "", false
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ControlType is the control role a run plays in a QC workflow.
type ControlType string

const (
	ControlSSC0   ControlType = "SSC0"
	ControlQCA    ControlType = "QC_A"
	ControlQCB    ControlType = "QC_B"
	ControlSample ControlType = "SAMPLE"
	ControlBlank  ControlType = "BLANK"
)

// IsQC reports whether a filename-matched control-role token was found at
// all, i.e. this is not the Sample default. This feeds the confidence
// table (spec.md §4.3): it does not by itself mean a payload should be
// produced — see IsDeliverable, which additionally excludes Blank.
func (c ControlType) IsQC() bool {
	return c != ControlSample
}

// IsDeliverable reports whether a run of this control type should be
// extracted and uploaded. Sample and Blank are both non-QC for dispatch
// purposes (spec.md §4.4 step 3): a blank run confirms the instrument is
// clean, it is not compared against a baseline, so it never produces a
// payload either.
func (c ControlType) IsDeliverable() bool {
	return c != ControlSample && c != ControlBlank
}

// ClassificationConfidence expresses how sure the classifier is about a
// control-type decision.
type ClassificationConfidence string

const (
	ConfidenceHigh   ClassificationConfidence = "HIGH"
	ConfidenceMedium ClassificationConfidence = "MEDIUM"
	ConfidenceLow    ClassificationConfidence = "LOW"
)

// ClassificationSource records which signal produced the classification.
type ClassificationSource string

const (
	SourceFilename ClassificationSource = "FILENAME"
	SourcePosition ClassificationSource = "POSITION"
	SourceDefault  ClassificationSource = "DEFAULT"
	SourceMetadata ClassificationSource = "METADATA"
)

// WellPosition is a plate coordinate, row A-H by column 1-12.
type WellPosition struct {
	Row    byte
	Column int
}

// NewWellPosition validates and constructs a WellPosition.
func NewWellPosition(row byte, column int) (WellPosition, bool) {
	if row >= 'a' && row <= 'z' {
		row -= 'a' - 'A'
	}
	if row < 'A' || row > 'H' || column < 1 || column > 12 {
		return WellPosition{}, false
	}
	return WellPosition{Row: row, Column: column}, true
}

func (w WellPosition) String() string {
	return string(w.Row) + itoa(w.Column)
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// Classification is the immutable result of classifying a raw artifact.
type Classification struct {
	ControlType  ControlType
	WellPosition *WellPosition
	InstrumentID string
	PlateID      string
	Confidence   ClassificationConfidence
	Source       ClassificationSource
}

// FinalizationState is a TrackedFile's position in the finalizer state machine.
type FinalizationState string

const (
	StateDetected     FinalizationState = "DETECTED"
	StateStabilizing  FinalizationState = "STABILIZING"
	StateReady        FinalizationState = "READY"
	StateProcessing   FinalizationState = "PROCESSING"
	StateDone         FinalizationState = "DONE"
	StateFailed       FinalizationState = "FAILED"
)

// TrackedFile is the Finalizer's per-artifact bookkeeping record.
type TrackedFile struct {
	Path         string
	Vendor       Vendor
	State        FinalizationState
	FirstSeen    time.Time
	LastSize     int64
	LastModified time.Time
	StableSince  *time.Time

	// ProcessingSince marks when the artifact entered Processing, so the
	// Finalizer can force a Failed transition on timeout.
	ProcessingSince *time.Time
}

// TargetMetrics is a single per-target (peptide) measurement row.
type TargetMetrics struct {
	TargetID          string   `json:"target_id"`
	PeptideSequence   string   `json:"peptide_sequence,omitempty"`
	PrecursorMZ       float64  `json:"precursor_mz"`
	RetentionTime     float64  `json:"retention_time"`
	RTExpected        *float64 `json:"rt_expected,omitempty"`
	RTDelta           *float64 `json:"rt_delta,omitempty"`
	PeakArea          float64  `json:"peak_area"`
	PeakHeight        float64  `json:"peak_height"`
	PeakWidthFWHM     *float64 `json:"peak_width_fwhm,omitempty"`
	PeakSymmetry      *float64 `json:"peak_symmetry,omitempty"`
	MassErrorPPM      *float64 `json:"mass_error_ppm,omitempty"`
	IsotopeDotProduct *float64 `json:"isotope_dot_product,omitempty"`
	Detected          bool     `json:"detected"`
}

// RunMetrics is the set of run-level aggregates derived from TargetMetrics.
type RunMetrics struct {
	TargetsFound          int      `json:"targets_found"`
	TargetsExpected       int      `json:"targets_expected"`
	TargetRecoveryPct     float64  `json:"target_recovery_pct"`
	MedianRTShift         *float64 `json:"median_rt_shift,omitempty"`
	MedianMassErrorPPM    *float64 `json:"median_mass_error_ppm,omitempty"`
	ChromatographyScore   *float64 `json:"chromatography_score,omitempty"`
}

// ExtractionResult is what the extractor subprocess produces, parsed from
// its CSV report.
type ExtractionResult struct {
	RunID             uuid.UUID
	RawFilePath       string
	RawFileName       string
	RawFileHash       string
	ExtractionTime    time.Duration
	ExtractorName     string
	ExtractorVersion  string
	TemplateName      string
	TemplateHash      string
	TargetMetrics     []TargetMetrics
	RunMetrics        RunMetrics
}

// RunInfo is the run-identifying portion of a delivery Payload.
type RunInfo struct {
	RunID                    uuid.UUID                `json:"run_id"`
	RawFileName              string                   `json:"raw_file_name"`
	RawFileHash              string                   `json:"raw_file_hash"`
	AcquisitionTime          *time.Time               `json:"acquisition_time,omitempty"`
	InstrumentID             string                   `json:"instrument_id"`
	Vendor                   Vendor                   `json:"vendor"`
	ControlType              ControlType              `json:"control_type"`
	WellPosition             string                   `json:"well_position,omitempty"`
	PlateID                  string                   `json:"plate_id,omitempty"`
	ClassificationConfidence ClassificationConfidence `json:"classification_confidence"`
	ClassificationSource     ClassificationSource     `json:"classification_source"`
}

// ExtractionInfo is the extractor-identifying portion of a delivery Payload.
type ExtractionInfo struct {
	ExtractorName    string `json:"extractor_name"`
	ExtractorVersion string `json:"extractor_version"`
	TemplateName     string `json:"template_name"`
	TemplateHash     string `json:"template_hash"`
	ExtractionTimeMs int64  `json:"extraction_time_ms"`
	Status           string `json:"status"`
}

// BaselineContext identifies the baseline a payload was compared against.
type BaselineContext struct {
	BaselineID          string    `json:"baseline_id"`
	BaselineEstablished time.Time `json:"baseline_established"`
	BaselineTemplateHash string   `json:"baseline_template_hash"`
}

// BaselineComparison carries the trivial flagging statistics computed
// against a baseline's target metrics.
type BaselineComparison struct {
	RTShiftMean    float64  `json:"rt_shift_mean"`
	RTShiftStd     float64  `json:"rt_shift_std"`
	AreaRatioMean  float64  `json:"area_ratio_mean"`
	AreaRatioStd   float64  `json:"area_ratio_std"`
	OutlierTargets []string `json:"outlier_targets"`
}

// ComparisonMetrics wraps the comparison result embedded in a Payload.
type ComparisonMetrics struct {
	VsBaseline BaselineComparison `json:"vs_baseline"`
}

// Payload is the sole JSON delivery envelope the Spool and Uploader
// manipulate. It is serialized once at enqueue time and never rewritten.
type Payload struct {
	SchemaVersion string    `json:"schema_version"`
	PayloadID     uuid.UUID `json:"payload_id"`
	CorrelationID string    `json:"correlation_id"`
	AgentID       string    `json:"agent_id"`
	AgentVersion  string    `json:"agent_version"`
	Timestamp     time.Time `json:"timestamp"`

	Run        RunInfo            `json:"run"`
	Extraction ExtractionInfo     `json:"extraction"`
	Baseline   *BaselineContext   `json:"baseline_context,omitempty"`

	TargetMetrics []TargetMetrics    `json:"target_metrics"`
	RunMetrics    RunMetrics         `json:"run_metrics"`
	Comparison    *ComparisonMetrics `json:"comparison_metrics,omitempty"`
}

// SchemaVersion is the current Payload schema version.
const SchemaVersion = "1.0"

// BaselineState is a baseline's position in its lifecycle: a newly
// established baseline starts as a Candidate, is Validated against
// further runs, becomes Active for comparison, and eventually is
// Archived (superseded) or Rejected/Failed (validation did not hold).
type BaselineState string

const (
	BaselineCandidate  BaselineState = "CANDIDATE"
	BaselineValidating BaselineState = "VALIDATING"
	BaselineActive     BaselineState = "ACTIVE"
	BaselineArchived   BaselineState = "ARCHIVED"
	BaselineRejected   BaselineState = "REJECTED"
	BaselineFailed     BaselineState = "FAILED"
)

// Baseline is the reference run an instrument's subsequent runs are
// compared against.
type Baseline struct {
	BaselineID   string        `json:"baseline_id"`
	InstrumentID string        `json:"instrument_id"`
	MethodID     string        `json:"method_id,omitempty"`
	TemplateHash string        `json:"template_hash"`
	KitInstallID string        `json:"kit_install_id,omitempty"`
	State        BaselineState `json:"state"`
	Established  time.Time     `json:"established"`
	RunMetrics   RunMetrics    `json:"run_metrics"`
	TargetMetrics []TargetMetrics `json:"target_metrics"`
}
