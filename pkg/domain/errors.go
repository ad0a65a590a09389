package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// A batch of readings contains a malformed row. The whole batch is rejected.
	ErrSchemaViolation = errors.New("schema violation")

	// A batch of readings exceeds the configured maximum size. The whole batch is rejected.
	ErrBatchTooLarge = errors.New("batch too large")

	// Too few matured rows (or rows per fold) to train and evaluate a model.
	ErrInsufficientData = errors.New("insufficient data")

	// Requested model version does not exist.
	ErrVersionNotFound = errors.New("model version not found")

	// Requested model version cannot be activated from its current status.
	ErrVersionNotEligible = errors.New("model version not eligible")

	// Prediction is requested against a model trained with another feature set.
	ErrMissingFeatureSchema = errors.New("missing feature schema")

	// Requested record is missing in the store.
	ErrMissing = errors.New("missing")

	// The active model has changed between reading the champion and swapping.
	//
	// The promotion should be retried as a whole new attempt.
	ErrChampionChanged = errors.New("champion has changed")

	// The exclusive lock is held by someone else.
	ErrLocked = errors.New("locked")

	// A label transition which breaks append-only semantics is requested.
	ErrLabelAlreadyResolved = errors.New("label is already resolved")

	// A model status transition which is not allowed by the state machine is requested.
	ErrInvalidStatusTransition = errors.New("invalid model status transition")
)

// Violation describes why a row in a batch is malformed.
type Violation struct {
	// position of the row in the batch
	Index  int
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%d] %s", v.Index, v.Reason)
}

// SchemaViolationError carries all violations found in a batch.
//
// errors.Is(err, ErrSchemaViolation) is true for this.
type SchemaViolationError struct {
	Violations []Violation
}

func (e *SchemaViolationError) Error() string {
	reasons := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		reasons = append(reasons, v.String())
	}
	return fmt.Sprintf("%s: %s", ErrSchemaViolation, strings.Join(reasons, "; "))
}

func (e *SchemaViolationError) Unwrap() error {
	return ErrSchemaViolation
}
