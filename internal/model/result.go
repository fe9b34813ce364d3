package model

import (
	"time"

	"github.com/sells-group/vis2attr/internal/apperr"
)

// FieldFlag is the decision status of a single field.
type FieldFlag string

// Field flags.
const (
	FlagAccepted      FieldFlag = "accepted"
	FlagLowConfidence FieldFlag = "low_confidence"
	FlagMissing       FieldFlag = "missing"
)

// FlagLowOverall marks the reason emitted when only the overall score fails.
const FlagLowOverall FieldFlag = "low_overall_confidence"

// Reason explains one cause of rejection. Field is empty for the overall
// score reason.
type Reason struct {
	Field   string    `json:"field"`
	Flag    FieldFlag `json:"flag"`
	Message string    `json:"message"`
}

func (r Reason) String() string {
	return r.Message
}

// Decision is the accept/reject verdict for a record.
type Decision struct {
	Accepted        bool                 `json:"accepted"`
	FieldFlags      map[string]FieldFlag `json:"field_flags"`
	Reasons         []Reason             `json:"reasons"`
	ConfidenceScore float64              `json:"confidence_score"`
}

// RejectedFields returns the field names named by the reasons, in order.
func (d Decision) RejectedFields() []string {
	out := make([]string, 0, len(d.Reasons))
	for _, r := range d.Reasons {
		if r.Field != "" {
			out = append(out, r.Field)
		}
	}
	return out
}

// Stage is a step of the per-item state machine.
type Stage string

// Item stages, in order.
const (
	StagePending     Stage = "pending"
	StageIngesting   Stage = "ingesting"
	StagePromptBuilt Stage = "prompt_built"
	StageModelCalled Stage = "model_called"
	StageNormalized  Stage = "normalized"
	StageDecided     Stage = "decided"
	StageStored      Stage = "stored"
	StageFailed      Stage = "failed"
)

// StageTiming records how long an item spent reaching a stage.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// StorageRefs holds the identifiers of the three per-item writes.
type StorageRefs struct {
	Attributes  string `json:"attributes"`
	RawResponse string `json:"raw_response"`
	Lineage     string `json:"lineage"`
}

// ItemResult is the outcome of running one item through the pipeline. A
// failed result never carries a Record or Decision.
type ItemResult struct {
	ItemID         string           `json:"item_id"`
	Source         string           `json:"source"`
	Success        bool             `json:"success"`
	Stage          Stage            `json:"stage"`
	FailedStage    Stage            `json:"failed_stage,omitempty"`
	Record         *AttributeRecord `json:"record,omitempty"`
	Decision       *Decision        `json:"decision,omitempty"`
	ErrorKind      apperr.Kind      `json:"error_kind,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	ProcessingTime time.Duration    `json:"processing_time_ns"`
	Stages         []StageTiming    `json:"stages,omitempty"`
	StorageIDs     *StorageRefs     `json:"storage_ids,omitempty"`
	Usage          Usage            `json:"usage"`
	Attempts       int              `json:"attempts"`
}

// Accepted reports whether the item succeeded and its decision accepted it.
func (r ItemResult) Accepted() bool {
	return r.Success && r.Decision != nil && r.Decision.Accepted
}

// LineageDocument is the per-item audit document written to storage.
type LineageDocument struct {
	PipelineVersion string             `json:"pipeline_version"`
	ItemID          string             `json:"item_id"`
	Source          string             `json:"source"`
	Provider        string             `json:"provider"`
	Model           string             `json:"model"`
	SchemaFields    []string           `json:"schema_fields"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Stages          []StageTiming      `json:"stages"`
	Record          Lineage            `json:"record"`
	Decision        Decision           `json:"decision"`
	ImageCount      int                `json:"image_count"`
	CreatedAt       time.Time          `json:"created_at"`
}
