package predict

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/opst/ripen/pkg/classifier"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/model/artifact"
	"go.uber.org/zap"
)

// no model version is active.
var ErrNoActiveModel = errors.New("no active model")

type Score struct {
	EntityId        int64     `json:"entity_id"`
	Timestamp       time.Time `json:"timestamp"`
	VersionId       string    `json:"version_id"`
	RiskProbability float64   `json:"risk_probability"`
	Predicted       int       `json:"predicted_label"`
}

// ActiveModel tells which model version is active.
type ActiveModel interface {
	Active(ctx context.Context) (*domain.ModelVersion, error)
}

// Scorer scores readings with the active model.
//
// Models are loaded from artifacts lazily, and the last one is cached.
type Scorer struct {
	active    ActiveModel
	artifacts artifact.Interface
	loader    classifier.Loader
	logger    *zap.Logger

	mu        sync.Mutex
	versionId string
	model     classifier.Model
}

func New(active ActiveModel, artifacts artifact.Interface, loader classifier.Loader, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		active:    active,
		artifacts: artifacts,
		loader:    loader,
		logger:    logger,
	}
}

func (s *Scorer) load(ctx context.Context, mv domain.ModelVersion) (classifier.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model != nil && s.versionId == mv.VersionId {
		return s.model, nil
	}

	blob, meta, err := s.artifacts.Load(ctx, mv.ArtifactRef)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(meta.FeatureNames, domain.FeatureNames) {
		return nil, fmt.Errorf(
			"%w: artifact of %s is trained with features %v",
			domain.ErrMissingFeatureSchema, mv.VersionId, meta.FeatureNames,
		)
	}
	model, err := s.loader.Load(blob)
	if err != nil {
		return nil, err
	}
	if model.FeatureCount() != len(domain.FeatureNames) {
		return nil, fmt.Errorf(
			"%w: model %s takes %d features",
			domain.ErrMissingFeatureSchema, mv.VersionId, model.FeatureCount(),
		)
	}

	s.logger.Info("model is loaded", zap.String("version_id", mv.VersionId))
	s.versionId = mv.VersionId
	s.model = model
	return model, nil
}

// Score readings with the active model.
//
// Readings are scored all or nothing.
// If the active model is trained with another feature set, or a reading lacks a feature,
// error is domain.ErrMissingFeatureSchema.
func (s *Scorer) Score(ctx context.Context, readings []domain.Reading) ([]Score, error) {
	mv, err := s.active.Active(ctx)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, ErrNoActiveModel
	}
	if !slices.Equal(mv.FeatureNames, domain.FeatureNames) {
		return nil, fmt.Errorf(
			"%w: %s is trained with features %v",
			domain.ErrMissingFeatureSchema, mv.VersionId, mv.FeatureNames,
		)
	}

	vectors := make([][]float64, len(readings))
	for i, r := range readings {
		x, ok := r.Features()
		if !ok {
			return nil, fmt.Errorf("%w: reading [%d] lacks derived features", domain.ErrMissingFeatureSchema, i)
		}
		vectors[i] = x
	}

	model, err := s.load(ctx, *mv)
	if err != nil {
		return nil, err
	}

	scores := make([]Score, len(readings))
	for i, r := range readings {
		p, err := model.PredictProba(vectors[i])
		if err != nil {
			return nil, err
		}
		label, err := model.Predict(vectors[i])
		if err != nil {
			return nil, err
		}
		scores[i] = Score{
			EntityId:        r.EntityId,
			Timestamp:       r.Timestamp,
			VersionId:       mv.VersionId,
			RiskProbability: domain.Round4(p),
			Predicted:       label,
		}
	}
	return scores, nil
}
