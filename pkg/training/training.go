package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opst/ripen/pkg/dataset"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/lock"
	"github.com/opst/ripen/pkg/domain/model/artifact"
	"github.com/opst/ripen/pkg/evaluate"
	"github.com/opst/ripen/pkg/labels"
	"github.com/opst/ripen/pkg/metrics"
	"github.com/opst/ripen/pkg/registry"
	"go.uber.org/zap"
)

// name of the lock serializing training jobs.
const LockName = "training"

// asOf later than the current time is requested.
var ErrAsOfInFuture = errors.New("as-of time is in the future")

// layout of version ids. They sort in order of training time.
const versionIdLayout = "20060102_150405.000000"

// VersionId derives a version id from the time of training.
func VersionId(trainedAt time.Time) string {
	return trainedAt.UTC().Format(versionIdLayout)
}

type Summary struct {
	Version  domain.ModelVersion      `json:"version"`
	Promoted bool                     `json:"promoted"`
	Decision domain.PromotionDecision `json:"decision"`

	// labels resolved before selecting the training set.
	Resolved labels.Result `json:"resolved"`

	// rows dropped for missing features.
	Dropped int `json:"dropped_rows"`
}

// Job trains a candidate model and decides its promotion.
type Job struct {
	lock       lock.Interface
	resolver   *labels.Resolver
	selector   *dataset.Selector
	evaluator  *evaluate.Evaluator
	artifacts  artifact.Interface
	registry   *registry.Registry
	thresholds domain.Thresholds

	clock   func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type Option func(*Job) *Job

func WithClock(clock func() time.Time) Option {
	return func(j *Job) *Job {
		j.clock = clock
		return j
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) *Job {
		j.metrics = m
		return j
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(j *Job) *Job {
		j.logger = l
		return j
	}
}

func New(
	lock lock.Interface,
	resolver *labels.Resolver,
	selector *dataset.Selector,
	evaluator *evaluate.Evaluator,
	artifacts artifact.Interface,
	registry *registry.Registry,
	thresholds domain.Thresholds,
	options ...Option,
) *Job {
	j := &Job{
		lock:       lock,
		resolver:   resolver,
		selector:   selector,
		evaluator:  evaluator,
		artifacts:  artifacts,
		registry:   registry,
		thresholds: thresholds,
		clock:      time.Now,
		metrics:    metrics.Nop(),
		logger:     zap.NewNop(),
	}
	for _, opt := range options {
		j = opt(j)
	}
	return j
}

// Run a training job.
//
// Steps are: resolve labels, select the training set as of asOf, fit and evaluate a candidate,
// save its artifact, register it and decide its promotion.
//
// # Args
//
// - ctx
//
// - asOf: labels resolved until this time are used. Zero value means now.
//
// # Returns
//
// - Summary
//
// - error: the job is aborted, and the champion is left untouched.
// domain.ErrLocked if another job is running.
// domain.ErrInsufficientData if there are too few matured rows.
// ErrAsOfInFuture if asOf is later than now.
func (j *Job) Run(ctx context.Context, asOf time.Time) (summary Summary, err error) {
	started := j.clock()
	defer func() {
		j.metrics.TrainingJobs.WithLabelValues(result(summary, err)).Inc()
		if err == nil {
			j.metrics.TrainingDuration.Observe(j.clock().Sub(started).Seconds())
		}
	}()

	now := started
	if asOf.IsZero() {
		asOf = now
	}
	if now.Before(asOf) {
		return Summary{}, fmt.Errorf("%w: %s (now: %s)", ErrAsOfInFuture, asOf, now)
	}

	release, err := j.lock.Acquire(ctx, LockName)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if rerr := release(context.Background()); rerr != nil {
			j.logger.Warn("failed to release the training lock", zap.Error(rerr))
		}
	}()

	resolved, err := j.resolver.Resolve(ctx, now)
	if err != nil {
		return Summary{}, err
	}
	summary.Resolved = resolved

	ds, err := j.selector.Select(ctx, asOf)
	if err != nil {
		return summary, err
	}
	summary.Dropped = ds.Dropped

	champion, err := j.registry.Active(ctx)
	if err != nil {
		return summary, err
	}

	model, _, evaluated, err := j.evaluator.Train(ctx, ds)
	if err != nil {
		return summary, err
	}

	blob, err := model.MarshalBinary()
	if err != nil {
		return summary, err
	}

	trainedAt := j.clock().UTC()
	versionId := VersionId(trainedAt)
	trainer := j.evaluator.Trainer()
	hyperparameters := trainer.Hyperparameters()

	ref, err := j.artifacts.Save(ctx, versionId, blob, artifact.Metadata{
		SavedAt:         trainedAt,
		Algorithm:       trainer.Name(),
		FeatureNames:    ds.FeatureNames,
		ExcludedColumns: domain.ExcludedColumns,
		Hyperparameters: hyperparameters,
		TrainingWindow:  ds.Window,
		RowCount:        ds.Len(),
		Metrics:         evaluated,
	})
	if err != nil {
		return summary, err
	}

	candidate := domain.ModelVersion{
		VersionId:       versionId,
		TrainedAt:       trainedAt,
		TrainingWindow:  ds.Window,
		RowCount:        ds.Len(),
		Hyperparameters: hyperparameters,
		Metrics:         evaluated,
		Status:          domain.Candidate,
		ArtifactRef:     ref,
		FeatureNames:    ds.FeatureNames,
	}
	if err := j.registry.Register(ctx, candidate); err != nil {
		return summary, err
	}
	summary.Version = candidate

	decision, err := j.registry.Promote(ctx, candidate, champion, j.thresholds)
	if err != nil {
		return summary, err
	}
	summary.Decision = decision
	summary.Promoted = decision.Promoted
	summary.Version.Reason = decision.Reason
	if decision.Promoted {
		summary.Version.Status = domain.Active
	} else {
		summary.Version.Status = domain.Rejected
	}

	j.logger.Info(
		"training job finished",
		zap.String("version_id", versionId),
		zap.Time("as_of", asOf),
		zap.Int("rows", ds.Len()),
		zap.Bool("promoted", decision.Promoted),
		zap.String("reason", decision.Reason),
	)
	return summary, nil
}

func result(summary Summary, err error) string {
	switch {
	case err == nil && summary.Promoted:
		return "promoted"
	case err == nil:
		return "rejected"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, domain.ErrLocked):
		return "locked"
	default:
		return "failed"
	}
}
