package db

import (
	"context"

	"github.com/opst/ripen/pkg/domain"
)

type ModelInterface interface {
	// Register a new model version as a candidate.
	//
	// Status of the passed ModelVersion is ignored.
	Register(ctx context.Context, mv domain.ModelVersion) error

	// Get a model version.
	//
	// If it is not found, error is domain.ErrVersionNotFound.
	Get(ctx context.Context, versionId string) (domain.ModelVersion, error)

	// Find all model versions, newer first.
	Find(ctx context.Context) ([]domain.ModelVersion, error)

	// Active returns the active version. If there is none, it returns nil.
	Active(ctx context.Context) (*domain.ModelVersion, error)

	// Activate the version, and retire the active version in a single transaction.
	//
	// # Args
	//
	// - ctx
	//
	// - versionId: version to be activated.
	//
	// - expectedChampion: version id which should be active now (nil means "no active versions").
	// If the active version is not this, it fails with domain.ErrChampionChanged and nothing is changed.
	//
	// - eligible: statuses of the version which can be activated.
	// If the version is in other status, it fails with domain.ErrVersionNotEligible.
	//
	// - reason: note of the status change.
	//
	// If the version is active already, it does nothing.
	Activate(
		ctx context.Context,
		versionId string,
		expectedChampion *string,
		eligible []domain.ModelStatus,
		reason string,
	) error

	// Reject a candidate version.
	//
	// If the version is not a candidate, it fails with domain.ErrVersionNotEligible.
	Reject(ctx context.Context, versionId string, reason string) error
}
