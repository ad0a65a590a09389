// Package classifier defines trainable binary classifiers.
//
// Labels are 0 or 1. Feature vectors of a model should have the same length as ones it is fit with.
package classifier

import (
	"context"
	"errors"
)

var (
	// features given to a model do not match ones it is fit with.
	ErrFeatureMismatch = errors.New("feature mismatch")

	// training data can not fit a model (empty, or labels other than 0/1).
	ErrBadTrainingData = errors.New("bad training data")

	// blob is not a serialized model of the loader.
	ErrUnknownBlob = errors.New("unknown model blob")
)

// Model is a fitted binary classifier.
type Model interface {
	// Predict the class of x.
	Predict(x []float64) (int, error)

	// PredictProba returns the probability that x is in the positive class.
	PredictProba(x []float64) (float64, error)

	// SelfEvaluate returns the accuracy estimated by the model itself while fitting.
	//
	// For bagged ensembles, it is out-of-bag accuracy.
	SelfEvaluate() float64

	// FeatureCount is the length of feature vectors which the model accepts.
	FeatureCount() int

	MarshalBinary() ([]byte, error)
}

// Trainer fits a new Model.
type Trainer interface {
	// Name of the algorithm.
	Name() string

	// Hyperparameters of models which this Trainer fits.
	Hyperparameters() map[string]any

	// Fit a Model to X and Y.
	//
	// # Args
	//
	// - ctx: fitting is aborted when it is done.
	//
	// - X: feature vectors. All of them should have the same length.
	//
	// - Y: labels (0 or 1) of each row in X.
	Fit(ctx context.Context, X [][]float64, Y []int) (Model, error)
}

// Loader restores a Model from its serialized form.
type Loader interface {
	Load(blob []byte) (Model, error)
}
