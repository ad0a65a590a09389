package evaluate_test

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/opst/ripen/pkg/classifier"
	"github.com/opst/ripen/pkg/classifier/forest"
	"github.com/opst/ripen/pkg/dataset"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/evaluate"
	"github.com/opst/ripen/pkg/utils/try"
)

// thresholdModel predicts 1 iff x[0] > 0.5.
type thresholdModel struct {
	features int
}

func (m thresholdModel) Predict(x []float64) (int, error) {
	if 0.5 < x[0] {
		return 1, nil
	}
	return 0, nil
}

func (m thresholdModel) PredictProba(x []float64) (float64, error) {
	return x[0], nil
}

func (m thresholdModel) SelfEvaluate() float64 { return 0.9 }

func (m thresholdModel) FeatureCount() int { return m.features }

func (m thresholdModel) MarshalBinary() ([]byte, error) { return []byte("threshold"), nil }

type thresholdTrainer struct {
	fitted [][]int
}

func (t *thresholdTrainer) Name() string { return "threshold" }

func (t *thresholdTrainer) Hyperparameters() map[string]any { return map[string]any{} }

func (t *thresholdTrainer) Fit(_ context.Context, X [][]float64, Y []int) (classifier.Model, error) {
	t.fitted = append(t.fitted, Y)
	return thresholdModel{features: len(X[0])}, nil
}

func generate(n int, positives int) dataset.Dataset {
	rng := rand.New(rand.NewSource(int64(n)))
	ds := dataset.Dataset{FeatureNames: []string{"a", "b"}}
	for i := 0; i < n; i++ {
		y := 0
		x0 := rng.Float64() * 0.5
		if i < positives {
			y = 1
			x0 = 0.5 + 0.01 + rng.Float64()*0.49
		}
		ds.X = append(ds.X, []float64{x0, rng.Float64()})
		ds.Y = append(ds.Y, y)
	}
	return ds
}

func TestStratifiedSplit(t *testing.T) {
	t.Run("it keeps the ratio of classes", func(t *testing.T) {
		ds := generate(50, 10)
		split := try.To(evaluate.StratifiedSplit(ds, 0.2, 42)).OrFatal(t)

		if split.Test.Len() != 10 || split.Test.Positives() != 2 {
			t.Errorf("test partition: %d rows, %d positives", split.Test.Len(), split.Test.Positives())
		}
		if split.Train.Len() != 40 || split.Train.Positives() != 8 {
			t.Errorf("train partition: %d rows, %d positives", split.Train.Len(), split.Train.Positives())
		}
	})

	t.Run("it is reproducible with the seed", func(t *testing.T) {
		ds := generate(50, 10)
		a := try.To(evaluate.StratifiedSplit(ds, 0.2, 7)).OrFatal(t)
		b := try.To(evaluate.StratifiedSplit(ds, 0.2, 7)).OrFatal(t)
		for i := range a.Test.X {
			if !slices.Equal(a.Test.X[i], b.Test.X[i]) {
				t.Fatalf("splits differ at %d", i)
			}
		}
	})

	t.Run("a rare class stays in the training partition", func(t *testing.T) {
		ds := generate(10, 1)
		split := try.To(evaluate.StratifiedSplit(ds, 0.2, 42)).OrFatal(t)
		if split.Train.Positives() != 1 || split.Test.Positives() != 0 {
			t.Errorf("positives: train %d, test %d", split.Train.Positives(), split.Test.Positives())
		}
	})

	t.Run("it refuses bad fractions", func(t *testing.T) {
		for _, f := range []float64{0, 1, -0.1, 1.5} {
			if _, err := evaluate.StratifiedSplit(generate(10, 5), f, 1); err == nil {
				t.Errorf("fraction %f is accepted", f)
			}
		}
	})
}

func TestTrain(t *testing.T) {
	ctx := context.Background()

	t.Run("it fits a model and evaluates it", func(t *testing.T) {
		trainer := &thresholdTrainer{}
		config := evaluate.Config{TestFraction: 0.2, Folds: 5, MinRows: 20, Seed: 42}
		testee := evaluate.New(trainer, config, nil)

		_, split, metrics, err := testee.Train(ctx, generate(100, 30))
		if err != nil {
			t.Fatal(err)
		}

		// once for the model, and once for each fold.
		if len(trainer.fitted) != 1+config.Folds {
			t.Errorf("Fit is called %d times", len(trainer.fitted))
		}
		if split.Train.Len() != 80 || split.Test.Len() != 20 {
			t.Errorf("unexpected split: %d / %d", split.Train.Len(), split.Test.Len())
		}

		if metrics.HeldOutAccuracy != 1 || metrics.SelfEvaluation != 0.9 {
			t.Errorf("unexpected metrics: %+v", metrics)
		}
		if len(metrics.CrossValidation.Scores) != config.Folds || metrics.CrossValidation.Mean != 1 || metrics.CrossValidation.Std != 0 {
			t.Errorf("unexpected cross validation: %+v", metrics.CrossValidation)
		}
		if pos := metrics.Positive(); pos.Recall != 1 || pos.F1 != 1 || pos.Support != 6 {
			t.Errorf("unexpected positive report: %+v", pos)
		}
		expected := domain.DatasetSummary{TrainRows: 80, TestRows: 20, Features: 2, PositiveRateTrain: 0.3}
		if metrics.Dataset != expected {
			t.Errorf("unexpected dataset summary: %+v", metrics.Dataset)
		}
	})

	t.Run("it works with the random forest", func(t *testing.T) {
		testee := evaluate.New(
			forest.New(forest.Params{Trees: 10, Seed: 1}),
			evaluate.DefaultConfig(), nil,
		)
		model, _, metrics, err := testee.Train(ctx, generate(120, 40))
		if err != nil {
			t.Fatal(err)
		}
		if model.FeatureCount() != 2 {
			t.Errorf("unexpected feature count: %d", model.FeatureCount())
		}
		if metrics.HeldOutAccuracy < 0.8 {
			t.Errorf("accuracy is too low: %+v", metrics)
		}
	})

	type when struct {
		config evaluate.Config
		ds     dataset.Dataset
	}
	for name, when := range map[string]when{
		"fewer rows than the minimum": {
			config: evaluate.Config{TestFraction: 0.2, Folds: 5, MinRows: 50, Seed: 1},
			ds:     generate(49, 20),
		},
		"no positives": {
			config: evaluate.Config{TestFraction: 0.2, Folds: 5, MinRows: 10, Seed: 1},
			ds:     generate(60, 0),
		},
		"no negatives": {
			config: evaluate.Config{TestFraction: 0.2, Folds: 5, MinRows: 10, Seed: 1},
			ds:     generate(60, 60),
		},
		"training partition smaller than folds": {
			config: evaluate.Config{TestFraction: 0.2, Folds: 10, MinRows: 0, Seed: 1},
			ds:     generate(6, 3),
		},
	} {
		t.Run("it refuses insufficient data: "+name, func(t *testing.T) {
			trainer := &thresholdTrainer{}
			testee := evaluate.New(trainer, when.config, nil)
			_, _, _, err := testee.Train(ctx, when.ds)
			if !errors.Is(err, domain.ErrInsufficientData) {
				t.Errorf("unexpected error: %v", err)
			}
			if len(trainer.fitted) != 0 {
				t.Errorf("Fit is called")
			}
		})
	}
}
