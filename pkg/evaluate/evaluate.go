package evaluate

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/opst/ripen/pkg/classifier"
	"github.com/opst/ripen/pkg/dataset"
	"github.com/opst/ripen/pkg/domain"
	"go.uber.org/zap"
)

type Config struct {
	// fraction of rows held out for testing.
	TestFraction float64

	// number of folds of cross validation. It is never reduced for small datasets.
	Folds int

	// datasets with fewer rows are not trained.
	MinRows int

	// seed for splitting and shuffling.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		TestFraction: 0.2,
		Folds:        5,
		MinRows:      50,
		Seed:         42,
	}
}

// Evaluator fits and evaluates models of a Trainer.
type Evaluator struct {
	trainer classifier.Trainer
	config  Config
	logger  *zap.Logger
}

func New(trainer classifier.Trainer, config Config, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{trainer: trainer, config: config, logger: logger}
}

func (e *Evaluator) Trainer() classifier.Trainer {
	return e.trainer
}

// Sufficient checks whether the dataset is large enough to be trained and evaluated.
//
// It returns an error wrapping domain.ErrInsufficientData if it is not.
func (e *Evaluator) Sufficient(ds dataset.Dataset) error {
	if ds.Len() < e.config.MinRows {
		return fmt.Errorf(
			"%w: %d rows (at least %d rows are required)",
			domain.ErrInsufficientData, ds.Len(), e.config.MinRows,
		)
	}
	pos := ds.Positives()
	if pos == 0 || pos == ds.Len() {
		return fmt.Errorf(
			"%w: both classes are required (%d positives in %d rows)",
			domain.ErrInsufficientData, pos, ds.Len(),
		)
	}
	return nil
}

func (e *Evaluator) checkTrainingPartition(train dataset.Dataset) error {
	pos := train.Positives()
	if pos == 0 || pos == train.Len() {
		return fmt.Errorf(
			"%w: training partition lacks a class (%d positives in %d rows)",
			domain.ErrInsufficientData, pos, train.Len(),
		)
	}
	if train.Len() < e.config.Folds {
		return fmt.Errorf(
			"%w: training partition has %d rows, fewer than %d folds",
			domain.ErrInsufficientData, train.Len(), e.config.Folds,
		)
	}
	return nil
}

// Train splits the dataset, fits a model to the training partition and evaluates it.
func (e *Evaluator) Train(ctx context.Context, ds dataset.Dataset) (classifier.Model, Split, domain.Metrics, error) {
	if err := e.Sufficient(ds); err != nil {
		return nil, Split{}, domain.Metrics{}, err
	}
	split, err := StratifiedSplit(ds, e.config.TestFraction, e.config.Seed)
	if err != nil {
		return nil, Split{}, domain.Metrics{}, err
	}
	if err := e.checkTrainingPartition(split.Train); err != nil {
		return nil, split, domain.Metrics{}, err
	}

	model, err := e.trainer.Fit(ctx, split.Train.X, split.Train.Y)
	if err != nil {
		return nil, split, domain.Metrics{}, err
	}

	metrics, err := e.Evaluate(ctx, model, split)
	if err != nil {
		return nil, split, domain.Metrics{}, err
	}
	return model, split, metrics, nil
}

// Evaluate a model fitted to the training partition of the split.
//
// Metrics are:
//
//   - self evaluation of the model (for forests, out-of-bag accuracy).
//
//   - k-fold cross validation accuracy over the training partition,
//     refitting a fresh model for each fold.
//
//   - accuracy and classification report over the held-out partition.
//
// Returned numbers are rounded to 4 decimals.
func (e *Evaluator) Evaluate(ctx context.Context, model classifier.Model, split Split) (domain.Metrics, error) {
	if err := e.checkTrainingPartition(split.Train); err != nil {
		return domain.Metrics{}, err
	}
	if split.Test.Len() == 0 {
		return domain.Metrics{}, fmt.Errorf("%w: held-out partition is empty", domain.ErrInsufficientData)
	}

	cv, err := e.crossValidate(ctx, split.Train)
	if err != nil {
		return domain.Metrics{}, err
	}

	predicted := make([]int, split.Test.Len())
	for i, x := range split.Test.X {
		p, err := model.Predict(x)
		if err != nil {
			return domain.Metrics{}, err
		}
		predicted[i] = p
	}

	report := classificationReport(split.Test.Y, predicted)
	metrics := domain.Metrics{
		SelfEvaluation:  model.SelfEvaluate(),
		CrossValidation: cv,
		HeldOutAccuracy: accuracy(split.Test.Y, predicted),
		Report:          report.classes,
		MacroAvg:        report.macro,
		WeightedAvg:     report.weighted,
		Dataset: domain.DatasetSummary{
			TrainRows:         split.Train.Len(),
			TestRows:          split.Test.Len(),
			Features:          model.FeatureCount(),
			PositiveRateTrain: float64(split.Train.Positives()) / float64(split.Train.Len()),
		},
	}.Rounded()

	e.logger.Info(
		"model evaluated",
		zap.Float64("self_evaluation", metrics.SelfEvaluation),
		zap.Float64("cv_mean", metrics.CrossValidation.Mean),
		zap.Float64("cv_std", metrics.CrossValidation.Std),
		zap.Float64("test_accuracy", metrics.HeldOutAccuracy),
		zap.Float64("recall", metrics.Positive().Recall),
		zap.Float64("f1", metrics.Positive().F1),
	)
	return metrics, nil
}

func (e *Evaluator) crossValidate(ctx context.Context, train dataset.Dataset) (domain.CrossValidation, error) {
	folds := kFold(train.Len(), e.config.Folds, e.config.Seed)
	scores := make([]float64, 0, len(folds))
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return domain.CrossValidation{}, err
		}

		rest := make([]int, 0, train.Len()-len(fold))
		for _, f := range folds[:i] {
			rest = append(rest, f...)
		}
		for _, f := range folds[i+1:] {
			rest = append(rest, f...)
		}
		slices.Sort(rest)

		fit := train.Subset(rest)
		held := train.Subset(fold)
		model, err := e.trainer.Fit(ctx, fit.X, fit.Y)
		if err != nil {
			return domain.CrossValidation{}, fmt.Errorf("fold %d: %w", i, err)
		}

		predicted := make([]int, held.Len())
		for j, x := range held.X {
			p, err := model.Predict(x)
			if err != nil {
				return domain.CrossValidation{}, fmt.Errorf("fold %d: %w", i, err)
			}
			predicted[j] = p
		}
		scores = append(scores, accuracy(held.Y, predicted))
	}

	mean, std := meanStd(scores)
	return domain.CrossValidation{Scores: scores, Mean: mean, Std: std}, nil
}

func accuracy(actual, predicted []int) float64 {
	if len(actual) == 0 {
		return 0
	}
	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct += 1
		}
	}
	return float64(correct) / float64(len(actual))
}

// population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

type report struct {
	classes  map[string]domain.ClassReport
	macro    domain.ClassReport
	weighted domain.ClassReport
}

// classificationReport reports precision, recall and F1 of each class.
//
// Undefined ratios (zero division) are 0.
func classificationReport(actual, predicted []int) report {
	ratio := func(a, b int) float64 {
		if b == 0 {
			return 0
		}
		return float64(a) / float64(b)
	}

	r := report{classes: map[string]domain.ClassReport{}}
	total := len(actual)
	for class, name := range []string{domain.NegativeClass, domain.PositiveClass} {
		tp, fp, fn := 0, 0, 0
		for i := range actual {
			switch {
			case actual[i] == class && predicted[i] == class:
				tp += 1
			case actual[i] != class && predicted[i] == class:
				fp += 1
			case actual[i] == class && predicted[i] != class:
				fn += 1
			}
		}
		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if 0 < precision+recall {
			f1 = 2 * precision * recall / (precision + recall)
		}
		cr := domain.ClassReport{Precision: precision, Recall: recall, F1: f1, Support: tp + fn}
		r.classes[name] = cr

		r.macro.Precision += cr.Precision / 2
		r.macro.Recall += cr.Recall / 2
		r.macro.F1 += cr.F1 / 2
		if 0 < total {
			w := float64(cr.Support) / float64(total)
			r.weighted.Precision += cr.Precision * w
			r.weighted.Recall += cr.Recall * w
			r.weighted.F1 += cr.F1 * w
		}
	}
	r.macro.Support = total
	r.weighted.Support = total
	return r
}
