package domain

import (
	"fmt"
	"time"
)

type ModelStatus string

const (
	// trained, evaluated and waiting for a promotion decision
	Candidate ModelStatus = "candidate"

	// serving. At most one version is active.
	Active ModelStatus = "active"

	// was active, and superseded by another version
	Retired ModelStatus = "retired"

	// failed the promotion gate. Retained for audit.
	Rejected ModelStatus = "rejected"
)

func (s ModelStatus) String() string {
	return string(s)
}

func AsModelStatus(s string) (ModelStatus, error) {
	switch st := ModelStatus(s); st {
	case Candidate, Active, Retired, Rejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown model status: %s", s)
	}
}

// CanBeChangedTo tells whether the state machine allows the transition.
//
// Allowed transitions are:
//
//	candidate -> active | rejected
//	active -> retired
//	retired -> active (rollback)
func (s ModelStatus) CanBeChangedTo(to ModelStatus) bool {
	switch s {
	case Candidate:
		return to == Active || to == Rejected
	case Active:
		return to == Retired
	case Retired:
		return to == Active
	default:
		return false
	}
}

type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ModelVersion is a trained model and its record.
type ModelVersion struct {
	// monotonic, time-derived identifier (e.g. "20240102_030405.000006")
	VersionId       string
	TrainedAt       time.Time
	TrainingWindow  TimeWindow
	RowCount        int
	Hyperparameters map[string]any
	Metrics         Metrics
	Status          ModelStatus
	ArtifactRef     string
	FeatureNames    []string

	// note why the status is changed at last
	Reason          string
	StatusChangedAt time.Time
}

// Thresholds for the promotion gate.
type Thresholds struct {
	// minimum recall of positive class
	MinRecall float64

	// minimum F1 score of positive class
	MinF1 float64

	// candidate precision of positive class can be lower than the champion's at most this.
	MaxPrecisionRegression float64
}

type PromotionDecision struct {
	Promoted bool   `json:"promoted"`
	Reason   string `json:"reason"`
}
