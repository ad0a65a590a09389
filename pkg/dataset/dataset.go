package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/telemetry/db"
	"go.uber.org/zap"
)

// Dataset is a labelled feature matrix.
//
// X[i] is the feature vector of the i-th row, ordered as FeatureNames, and Y[i] is its label.
type Dataset struct {
	FeatureNames []string
	X            [][]float64
	Y            []int

	// range of timestamps of rows
	Window domain.TimeWindow

	// number of rows dropped for missing features
	Dropped int
}

func (ds Dataset) Len() int {
	return len(ds.Y)
}

// Positives counts rows labelled 1.
func (ds Dataset) Positives() int {
	n := 0
	for _, y := range ds.Y {
		if y == 1 {
			n += 1
		}
	}
	return n
}

// Subset returns a Dataset of rows at given indexes.
//
// Window and Dropped are carried as they are.
func (ds Dataset) Subset(indexes []int) Dataset {
	sub := Dataset{
		FeatureNames: ds.FeatureNames,
		X:            make([][]float64, len(indexes)),
		Y:            make([]int, len(indexes)),
		Window:       ds.Window,
		Dropped:      ds.Dropped,
	}
	for i, idx := range indexes {
		sub.X[i] = ds.X[idx]
		sub.Y[i] = ds.Y[idx]
	}
	return sub
}

// Selector builds training sets from matured readings.
type Selector struct {
	store  kdb.TelemetryInterface
	logger *zap.Logger
}

func New(store kdb.TelemetryInterface, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{store: store, logger: logger}
}

// Select readings whose label had been resolved at asOf.
//
// Readings resolved after asOf are never included, even if the store has resolved them already.
// Rows are ordered by (entity id, timestamp).
// Rows with any missing derived feature are dropped, and counted as Dataset.Dropped.
func (s *Selector) Select(ctx context.Context, asOf time.Time) (Dataset, error) {
	readings, err := s.store.Matured(ctx, asOf)
	if err != nil {
		return Dataset{}, err
	}

	ds := Dataset{
		FeatureNames: domain.FeatureNames,
		X:            [][]float64{},
		Y:            []int{},
	}
	first := true
	for _, r := range readings {
		if !r.Label.Resolved() || asOf.Before(r.Label.ResolvedAt) {
			// the store should not return them. guard against leakage anyway.
			continue
		}
		if r.Label.Value != 0 && r.Label.Value != 1 {
			return Dataset{}, fmt.Errorf("reading %s: unexpected label %d", r.Key(), r.Label.Value)
		}

		x, ok := r.Features()
		if !ok {
			ds.Dropped += 1
			continue
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, r.Label.Value)

		ts := r.Timestamp.UTC()
		if first || ts.Before(ds.Window.From) {
			ds.Window.From = ts
		}
		if first || ds.Window.To.Before(ts) {
			ds.Window.To = ts
		}
		first = false
	}

	s.logger.Info(
		"training set selected",
		zap.Time("as_of", asOf),
		zap.Int("rows", ds.Len()),
		zap.Int("positives", ds.Positives()),
		zap.Int("dropped", ds.Dropped),
	)
	return ds, nil
}
