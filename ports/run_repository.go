package ports

import (
	"context"
	"time"

	"atomsense/domain/core"
	"atomsense/domain/sensitivity"
)

// RunRecord is the persisted form of one analysis.
type RunRecord struct {
	ID          core.RunID                `json:"id" db:"id"`
	Encoding    string                    `json:"encoding" db:"encoding"`
	Fingerprint core.Hash                 `json:"fingerprint" db:"fingerprint"`
	Config      sensitivity.Config        `json:"config"`
	Thresholds  sensitivity.Thresholds    `json:"thresholds"`
	Annotations []sensitivity.Annotation  `json:"annotations"`
	Elements    []string                  `json:"elements"`
	Payload     sensitivity.RenderPayload `json:"payload"`
	Unscored    []int                     `json:"unscored"`
	RuntimeMs   int64                     `json:"runtime_ms" db:"runtime_ms"`
	CreatedAt   time.Time                 `json:"created_at" db:"created_at"`
}

// RunRepository stores analysis runs.
type RunRepository interface {
	Save(ctx context.Context, run *RunRecord) error
	Get(ctx context.Context, id core.RunID) (*RunRecord, error)
	List(ctx context.Context, limit int) ([]*RunRecord, error)
}
