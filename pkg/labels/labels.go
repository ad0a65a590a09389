package labels

import (
	"context"
	"errors"
	"time"

	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/telemetry/db"
	"github.com/opst/ripen/pkg/metrics"
	"go.uber.org/zap"
)

// Decide resolutions of unresolved readings in the timeline, as observed at now.
//
// For each unresolved reading at ts:
//
//   - label 1, if an outcome event happened in (ts, ts+window] until now.
//   - label 0, if the window has passed (now - ts >= window) without such event.
//   - otherwise, it is left unresolved.
//
// Resolved readings in the timeline are ignored.
// Resolutions have source "observed_outcome" and resolved_at = now.
func Decide(timeline domain.EntityTimeline, now time.Time, window time.Duration) []domain.Resolution {
	resolutions := []domain.Resolution{}
	for _, r := range timeline.Unresolved {
		if r.Label.Resolved() {
			continue
		}

		value := -1
		for _, e := range timeline.Events {
			if e.EntityId == timeline.EntityId && e.Qualifies(r.Timestamp, window, now) {
				value = 1
				break
			}
		}
		if value < 0 && window <= now.Sub(r.Timestamp) {
			value = 0
		}
		if value < 0 {
			continue
		}

		resolutions = append(resolutions, domain.Resolution{
			Key: r.Key(),
			Label: domain.LabelStatus{
				State:      domain.LabelResolved,
				Value:      value,
				ResolvedAt: now,
				Source:     domain.ObservedOutcome,
			},
		})
	}
	return resolutions
}

type Result struct {
	ResolvedCount int `json:"resolved_count"`
	PositiveCount int `json:"positive_count"`
}

func (r Result) Add(other Result) Result {
	return Result{
		ResolvedCount: r.ResolvedCount + other.ResolvedCount,
		PositiveCount: r.PositiveCount + other.PositiveCount,
	}
}

// Resolver assigns labels to matured readings.
//
// Its only label sources are outcome events and expiry of the maturity window.
type Resolver struct {
	store   kdb.TelemetryInterface
	window  time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type Option func(*Resolver) *Resolver

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) *Resolver {
		r.metrics = m
		return r
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) *Resolver {
		r.logger = l
		return r
	}
}

func New(store kdb.TelemetryInterface, window time.Duration, options ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		window:  window,
		metrics: metrics.Nop(),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		r = opt(r)
	}
	return r
}

func (r *Resolver) Window() time.Duration {
	return r.window
}

// Step resolves readings of one entity, next to the cursor.
//
// # Returns
//
// - domain.EntityCursor: cursor for the next step.
//
// - Result: labels resolved in this step.
//
// - bool: true if an entity is processed (or skipped because another one is processing it).
// false means there are no resolvable readings.
//
// - error
func (r *Resolver) Step(ctx context.Context, cursor domain.EntityCursor, now time.Time) (domain.EntityCursor, Result, bool, error) {
	var stepped Result
	next, picked, err := r.store.PickUnresolved(
		ctx, cursor, now, r.window,
		func(timeline domain.EntityTimeline) ([]domain.Resolution, error) {
			resolutions := Decide(timeline, now, r.window)
			stepped = Result{}
			for _, res := range resolutions {
				stepped.ResolvedCount += 1
				if res.Label.Value == 1 {
					stepped.PositiveCount += 1
				}
			}
			return resolutions, nil
		},
	)
	if errors.Is(err, domain.ErrLocked) {
		r.logger.Debug("entity is skipped", zap.Int64("entity_id", next.Head), zap.Error(err))
		return next, Result{}, true, nil
	}
	if err != nil {
		return next, Result{}, picked, err
	}
	if !picked {
		return next, Result{}, false, nil
	}

	r.metrics.ResolvedLabels.WithLabelValues(domain.PositiveClass).Add(float64(stepped.PositiveCount))
	r.metrics.ResolvedLabels.WithLabelValues(domain.NegativeClass).Add(float64(stepped.ResolvedCount - stepped.PositiveCount))
	r.logger.Debug(
		"entity resolved",
		zap.Int64("entity_id", next.Head),
		zap.Int("resolved", stepped.ResolvedCount),
		zap.Int("positive", stepped.PositiveCount),
	)
	return next, stepped, true, nil
}

// Resolve labels of all resolvable readings, as observed at now.
//
// Readings resolved already are never revisited,
// so outcome events found later never change their labels.
func (r *Resolver) Resolve(ctx context.Context, now time.Time) (Result, error) {
	total := Result{}
	cursor := domain.EntityCursor{}

	// each entity is visited at most once in a pass.
	visited := map[int64]struct{}{}
	for {
		next, stepped, picked, err := r.Step(ctx, cursor, now)
		if err != nil {
			return total, err
		}
		if !picked {
			break
		}
		if _, ok := visited[next.Head]; ok {
			break
		}
		visited[next.Head] = struct{}{}
		total = total.Add(stepped)
		cursor = next
	}

	r.logger.Info(
		"labels resolved",
		zap.Time("now", now),
		zap.Int("resolved", total.ResolvedCount),
		zap.Int("positive", total.PositiveCount),
	)
	return total, nil
}
