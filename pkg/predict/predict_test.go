package predict_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/ripen/pkg/classifier"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/model/artifact"
	"github.com/opst/ripen/pkg/domain/model/artifact/fs"
	"github.com/opst/ripen/pkg/predict"
	"github.com/opst/ripen/pkg/utils/try"
)

type activeFunc func(context.Context) (*domain.ModelVersion, error)

func (f activeFunc) Active(ctx context.Context) (*domain.ModelVersion, error) {
	return f(ctx)
}

// constModel answers the same probability always.
type constModel struct {
	proba float64
}

func (m constModel) Predict(x []float64) (int, error) {
	if 0.5 < m.proba {
		return 1, nil
	}
	return 0, nil
}

func (m constModel) PredictProba(x []float64) (float64, error) { return m.proba, nil }

func (m constModel) SelfEvaluate() float64 { return 0 }

func (m constModel) FeatureCount() int { return len(domain.FeatureNames) }

func (m constModel) MarshalBinary() ([]byte, error) { return []byte("const"), nil }

type countingLoader struct {
	loaded int
	proba  float64
}

func (l *countingLoader) Load(blob []byte) (classifier.Model, error) {
	l.loaded += 1
	return constModel{proba: l.proba}, nil
}

func ref(v float64) *float64 {
	return &v
}

func complete(entityId int64) domain.Reading {
	return domain.Reading{
		EntityId:  entityId,
		Timestamp: time.Unix(100, 0).UTC(),
		Derived: domain.Derived{
			LeadImpedanceOhmsRollingMean3d: ref(1), LeadImpedanceOhmsRollingMean7d: ref(1),
			CaptureThresholdVRollingMean3d: ref(1), CaptureThresholdVRollingMean7d: ref(1),
			LeadImpedanceOhmsDeltaPerDay3d: ref(1), LeadImpedanceOhmsDeltaPerDay7d: ref(1),
			CaptureThresholdVDeltaPerDay3d: ref(1), CaptureThresholdVDeltaPerDay7d: ref(1),
		},
	}
}

func saved(t *testing.T, store artifact.Interface, versionId string, features []string) domain.ModelVersion {
	t.Helper()
	r := try.To(store.Save(
		context.Background(), versionId, []byte("const"),
		artifact.Metadata{FeatureNames: features},
	)).OrFatal(t)
	return domain.ModelVersion{
		VersionId: versionId, Status: domain.Active, ArtifactRef: r, FeatureNames: features,
	}
}

func TestScore(t *testing.T) {
	ctx := context.Background()

	t.Run("it scores readings with the active model, loading it once", func(t *testing.T) {
		store := try.To(fs.New(t.TempDir())).OrFatal(t)
		v1 := saved(t, store, "v1", domain.FeatureNames)
		loader := &countingLoader{proba: 0.87654}
		testee := predict.New(
			activeFunc(func(context.Context) (*domain.ModelVersion, error) { return &v1, nil }),
			store, loader, nil,
		)

		for range 2 {
			scores := try.To(testee.Score(ctx, []domain.Reading{complete(1), complete(2)})).OrFatal(t)
			if len(scores) != 2 {
				t.Fatalf("unexpected scores: %+v", scores)
			}
			for i, s := range scores {
				if s.EntityId != int64(i+1) || s.VersionId != "v1" || s.RiskProbability != 0.8765 || s.Predicted != 1 {
					t.Errorf("unexpected score: %+v", s)
				}
			}
		}
		if loader.loaded != 1 {
			t.Errorf("model is loaded %d times", loader.loaded)
		}
	})

	t.Run("it reloads the model when the active version changes", func(t *testing.T) {
		store := try.To(fs.New(t.TempDir())).OrFatal(t)
		v1 := saved(t, store, "v1", domain.FeatureNames)
		v2 := saved(t, store, "v2", domain.FeatureNames)
		active := &v1
		loader := &countingLoader{proba: 0.1}
		testee := predict.New(
			activeFunc(func(context.Context) (*domain.ModelVersion, error) { return active, nil }),
			store, loader, nil,
		)

		try.To(testee.Score(ctx, []domain.Reading{complete(1)})).OrFatal(t)
		active = &v2
		scores := try.To(testee.Score(ctx, []domain.Reading{complete(1)})).OrFatal(t)
		if loader.loaded != 2 || scores[0].VersionId != "v2" {
			t.Errorf("loaded %d times, scores: %+v", loader.loaded, scores)
		}
	})

	t.Run("it fails without active models", func(t *testing.T) {
		store := try.To(fs.New(t.TempDir())).OrFatal(t)
		testee := predict.New(
			activeFunc(func(context.Context) (*domain.ModelVersion, error) { return nil, nil }),
			store, &countingLoader{}, nil,
		)
		if _, err := testee.Score(ctx, []domain.Reading{complete(1)}); !errors.Is(err, predict.ErrNoActiveModel) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it refuses models trained with other features", func(t *testing.T) {
		store := try.To(fs.New(t.TempDir())).OrFatal(t)
		old := saved(t, store, "old", []string{"lead_impedance_ohms"})
		testee := predict.New(
			activeFunc(func(context.Context) (*domain.ModelVersion, error) { return &old, nil }),
			store, &countingLoader{}, nil,
		)
		if _, err := testee.Score(ctx, []domain.Reading{complete(1)}); !errors.Is(err, domain.ErrMissingFeatureSchema) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it refuses readings lacking features", func(t *testing.T) {
		store := try.To(fs.New(t.TempDir())).OrFatal(t)
		v1 := saved(t, store, "v1", domain.FeatureNames)
		loader := &countingLoader{}
		testee := predict.New(
			activeFunc(func(context.Context) (*domain.ModelVersion, error) { return &v1, nil }),
			store, loader, nil,
		)
		lacking := complete(2)
		lacking.Derived.CaptureThresholdVDeltaPerDay7d = nil

		if _, err := testee.Score(ctx, []domain.Reading{complete(1), lacking}); !errors.Is(err, domain.ErrMissingFeatureSchema) {
			t.Errorf("unexpected error: %v", err)
		}
		if loader.loaded != 0 {
			t.Error("model is loaded")
		}
	})
}
