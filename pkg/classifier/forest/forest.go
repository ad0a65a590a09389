// Package forest implements a random forest classifier:
// bagged CART trees with gini impurity and feature subsampling.
package forest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/opst/ripen/pkg/classifier"
	"golang.org/x/sync/errgroup"
)

const Name = "random_forest"

const format = "ripen/random_forest/v1"

type Params struct {
	// number of trees.
	Trees int `json:"n_estimators" yaml:"trees"`

	// max depth of trees. 0 means no limit.
	MaxDepth int `json:"max_depth" yaml:"maxDepth"`

	// nodes with fewer samples are not split.
	MinSamplesSplit int `json:"min_samples_split" yaml:"minSamplesSplit"`

	// number of features considered for each split. 0 means sqrt of the number of features.
	MaxFeatures int `json:"max_features" yaml:"maxFeatures"`

	Seed int64 `json:"random_state" yaml:"seed"`
}

func DefaultParams() Params {
	return Params{
		Trees:           100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MaxFeatures:     0,
		Seed:            42,
	}
}

type Trainer struct {
	params Params
}

var _ classifier.Trainer = &Trainer{}

// New Trainer. Zero values in params are replaced with defaults, except MaxDepth and MaxFeatures.
func New(params Params) *Trainer {
	def := DefaultParams()
	if params.Trees <= 0 {
		params.Trees = def.Trees
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = def.MinSamplesSplit
	}
	if params.MaxDepth < 0 {
		params.MaxDepth = 0
	}
	if params.MaxFeatures < 0 {
		params.MaxFeatures = 0
	}
	return &Trainer{params: params}
}

func (t *Trainer) Name() string {
	return Name
}

func (t *Trainer) Params() Params {
	return t.params
}

func (t *Trainer) Hyperparameters() map[string]any {
	var maxDepth any = nil
	if 0 < t.params.MaxDepth {
		maxDepth = t.params.MaxDepth
	}
	maxFeatures := any("sqrt")
	if 0 < t.params.MaxFeatures {
		maxFeatures = t.params.MaxFeatures
	}
	return map[string]any{
		"algorithm":         Name,
		"n_estimators":      t.params.Trees,
		"max_depth":         maxDepth,
		"min_samples_split": t.params.MinSamplesSplit,
		"max_features":      maxFeatures,
		"random_state":      t.params.Seed,
		"oob_score":         true,
	}
}

func validate(X [][]float64, Y []int) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no rows", classifier.ErrBadTrainingData)
	}
	if len(X) != len(Y) {
		return 0, fmt.Errorf("%w: %d rows but %d labels", classifier.ErrBadTrainingData, len(X), len(Y))
	}
	features := len(X[0])
	if features == 0 {
		return 0, fmt.Errorf("%w: no features", classifier.ErrBadTrainingData)
	}
	for i := range X {
		if len(X[i]) != features {
			return 0, fmt.Errorf(
				"%w: row %d has %d features (expected %d)",
				classifier.ErrBadTrainingData, i, len(X[i]), features,
			)
		}
		if Y[i] != 0 && Y[i] != 1 {
			return 0, fmt.Errorf("%w: row %d has label %d", classifier.ErrBadTrainingData, i, Y[i])
		}
	}
	return features, nil
}

// Fit grows trees concurrently.
//
// Each tree has its own random source derived from the seed,
// so fitted models are the same for the same inputs regardless of scheduling.
func (t *Trainer) Fit(ctx context.Context, X [][]float64, Y []int) (classifier.Model, error) {
	features, err := validate(X, Y)
	if err != nil {
		return nil, err
	}

	maxFeatures := t.params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(features)))
	}
	maxFeatures = max(1, min(maxFeatures, features))

	n := len(X)
	trees := make([]tree, t.params.Trees)
	inBag := make([][]bool, t.params.Trees)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(t.params.Seed + int64(i)))

			bag := make([]bool, n)
			samples := make([]int, n)
			for j := range samples {
				s := rng.Intn(n)
				samples[j] = s
				bag[s] = true
			}

			g := &growth{
				X: X, Y: Y,
				maxDepth:        t.params.MaxDepth,
				minSamplesSplit: t.params.MinSamplesSplit,
				maxFeatures:     maxFeatures,
				rng:             rng,
			}
			g.grow(samples, 0)
			trees[i] = g.nodes
			inBag[i] = bag
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	m := &Model{
		params:   t.params,
		features: features,
		trees:    trees,
	}
	m.oob = outOfBagAccuracy(trees, inBag, X, Y)
	return m, nil
}

// outOfBagAccuracy is the accuracy of votes by trees which have not seen each sample.
//
// Samples seen by all trees are not counted. If no samples are counted, it is 0.
func outOfBagAccuracy(trees []tree, inBag [][]bool, X [][]float64, Y []int) float64 {
	counted, correct := 0, 0
	for s := range X {
		sum, votes := 0.0, 0
		for i, t := range trees {
			if inBag[i][s] {
				continue
			}
			sum += t.proba(X[s])
			votes += 1
		}
		if votes == 0 {
			continue
		}
		counted += 1
		if decide(sum/float64(votes)) == Y[s] {
			correct += 1
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(correct) / float64(counted)
}

// ties go to the negative class.
func decide(proba float64) int {
	if 0.5 < proba {
		return 1
	}
	return 0
}

// Model is a fitted random forest.
type Model struct {
	params   Params
	features int
	oob      float64
	trees    []tree
}

var _ classifier.Model = &Model{}

func (m *Model) check(x []float64) error {
	if len(x) != m.features {
		return fmt.Errorf(
			"%w: %d features are given, but the model takes %d",
			classifier.ErrFeatureMismatch, len(x), m.features,
		)
	}
	return nil
}

func (m *Model) PredictProba(x []float64) (float64, error) {
	if err := m.check(x); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, t := range m.trees {
		sum += t.proba(x)
	}
	return sum / float64(len(m.trees)), nil
}

func (m *Model) Predict(x []float64) (int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return decide(p), nil
}

// SelfEvaluate returns out-of-bag accuracy.
func (m *Model) SelfEvaluate() float64 {
	return m.oob
}

func (m *Model) FeatureCount() int {
	return m.features
}

func (m *Model) Params() Params {
	return m.params
}

type serialized struct {
	Format   string  `json:"format"`
	Params   Params  `json:"params"`
	Features int     `json:"n_features"`
	OOB      float64 `json:"oob_score"`
	Trees    []tree  `json:"trees"`
}

func (m *Model) MarshalBinary() ([]byte, error) {
	return json.Marshal(serialized{
		Format:   format,
		Params:   m.params,
		Features: m.features,
		OOB:      m.oob,
		Trees:    m.trees,
	})
}

type Loader struct{}

var _ classifier.Loader = Loader{}

func (Loader) Load(blob []byte) (classifier.Model, error) {
	var s serialized
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", classifier.ErrUnknownBlob, err)
	}
	if s.Format != format {
		return nil, fmt.Errorf("%w: format %q", classifier.ErrUnknownBlob, s.Format)
	}
	if len(s.Trees) == 0 || s.Features <= 0 {
		return nil, fmt.Errorf("%w: empty model", classifier.ErrUnknownBlob)
	}
	for i, t := range s.Trees {
		if err := t.check(s.Features); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %w", classifier.ErrUnknownBlob, i, err)
		}
	}
	return &Model{
		params:   s.Params,
		features: s.Features,
		oob:      s.OOB,
		trees:    s.Trees,
	}, nil
}
