package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/telemetry/db"
	"github.com/opst/ripen/pkg/metrics"
	"go.uber.org/zap"
)

// Path is where a batch comes from.
type Path string

const (
	// live telemetry. Supplied labels are not trusted.
	PathOnline Path = "online"

	// offline-generated (simulated) telemetry. Supplied labels are trusted.
	PathSimulated Path = "simulated"
)

func AsPath(s string) (Path, error) {
	switch p := Path(s); p {
	case PathOnline, PathSimulated:
		return p, nil
	case "":
		return PathOnline, nil
	default:
		return "", fmt.Errorf("unknown ingestion path: %s", s)
	}
}

func (p Path) String() string {
	return string(p)
}

const DefaultMaxBatchSize = 2000

type Result struct {
	Received          int `json:"received_count"`
	Inserted          int `json:"inserted_count"`
	DuplicateInBatch  int `json:"duplicate_in_payload_count"`
	DuplicateExisting int `json:"duplicate_existing_count"`
}

// Duplicate is the number of readings not inserted.
func (r Result) Duplicate() int {
	return r.DuplicateInBatch + r.DuplicateExisting
}

type Deduplicator struct {
	store        kdb.TelemetryInterface
	window       time.Duration
	maxBatchSize int
	clock        func() time.Time
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

type Option func(*Deduplicator) *Deduplicator

func WithMaxBatchSize(n int) Option {
	return func(d *Deduplicator) *Deduplicator {
		d.maxBatchSize = n
		return d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(d *Deduplicator) *Deduplicator {
		d.clock = clock
		return d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Deduplicator) *Deduplicator {
		d.metrics = m
		return d
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Deduplicator) *Deduplicator {
		d.logger = l
		return d
	}
}

// New creates a Deduplicator.
//
// # Args
//
// - store
//
// - window: maturity window. Labels on the simulated path are resolved after this.
//
// - options
func New(store kdb.TelemetryInterface, window time.Duration, options ...Option) *Deduplicator {
	d := &Deduplicator{
		store:        store,
		window:       window,
		maxBatchSize: DefaultMaxBatchSize,
		clock:        time.Now,
		metrics:      metrics.Nop(),
		logger:       zap.NewNop(),
	}
	for _, opt := range options {
		d = opt(d)
	}
	return d
}

// Ingest a batch of readings.
//
// The batch is validated as a whole: if a reading is malformed, nothing is stored
// and the error is *domain.SchemaViolationError. A batch larger than the maximum is
// rejected with domain.ErrBatchTooLarge.
//
// Duplicates are not errors. They are counted in the Result.
func (d *Deduplicator) Ingest(ctx context.Context, path Path, batch []domain.Reading) (Result, error) {
	if err := d.validate(batch); err != nil {
		return Result{}, err
	}

	result := Result{Received: len(batch)}

	// 1. collapse duplicates in the batch. first one wins.
	seen := make(map[domain.ReadingKey]struct{}, len(batch))
	unique := make([]domain.Reading, 0, len(batch))
	for _, r := range batch {
		r.Timestamp = time.Unix(r.Timestamp.Unix(), 0).UTC()
		k := r.Key()
		if _, ok := seen[k]; ok {
			result.DuplicateInBatch += 1
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}

	// 2. batched existence check.
	keys := make([]domain.ReadingKey, len(unique))
	for i, r := range unique {
		keys[i] = r.Key()
	}
	existing, err := d.store.Existing(ctx, keys)
	if err != nil {
		return Result{}, err
	}

	now := d.clock().UTC()
	residual := make([]domain.Reading, 0, len(unique))
	for _, r := range unique {
		if _, ok := existing[r.Key()]; ok {
			result.DuplicateExisting += 1
			continue
		}
		r.Label = d.initialLabel(path, r, now)
		residual = append(residual, r)
	}

	// 3. insert. Readings inserted concurrently by others are lost here.
	inserted, err := d.store.Insert(ctx, residual)
	if err != nil {
		return Result{}, err
	}
	result.Inserted = inserted
	result.DuplicateExisting += len(residual) - inserted

	d.metrics.Readings.WithLabelValues("received").Add(float64(result.Received))
	d.metrics.Readings.WithLabelValues("inserted").Add(float64(result.Inserted))
	d.metrics.Readings.WithLabelValues("duplicate_in_batch").Add(float64(result.DuplicateInBatch))
	d.metrics.Readings.WithLabelValues("duplicate_existing").Add(float64(result.DuplicateExisting))
	d.logger.Debug(
		"batch ingested",
		zap.Stringer("path", path),
		zap.Int("received", result.Received),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicate_in_batch", result.DuplicateInBatch),
		zap.Int("duplicate_existing", result.DuplicateExisting),
	)
	return result, nil
}

func (d *Deduplicator) validate(batch []domain.Reading) error {
	if len(batch) == 0 {
		d.metrics.RejectedBatches.WithLabelValues("schema_violation").Inc()
		return &domain.SchemaViolationError{
			Violations: []domain.Violation{{Index: 0, Reason: "batch is empty"}},
		}
	}
	if d.maxBatchSize < len(batch) {
		d.metrics.RejectedBatches.WithLabelValues("batch_too_large").Inc()
		return fmt.Errorf(
			"%w: %d readings (max: %d)", domain.ErrBatchTooLarge, len(batch), d.maxBatchSize,
		)
	}

	violations := []domain.Violation{}
	for i, r := range batch {
		for _, reason := range r.Validate() {
			violations = append(violations, domain.Violation{Index: i, Reason: reason})
		}
	}
	if len(violations) != 0 {
		d.metrics.RejectedBatches.WithLabelValues("schema_violation").Inc()
		return &domain.SchemaViolationError{Violations: violations}
	}
	return nil
}

// initialLabel decides the label status of a new reading.
//
// Supplied labels are provisional on the online path, so they are dropped.
// On the simulated path, they become resolved when the window matures (or now, if it has matured already).
func (d *Deduplicator) initialLabel(path Path, r domain.Reading, now time.Time) domain.LabelStatus {
	if path != PathSimulated || r.SuppliedLabel == nil {
		return domain.Unresolved()
	}

	resolvedAt := r.Timestamp.Add(d.window)
	if resolvedAt.Before(now) {
		resolvedAt = now
	}
	return domain.LabelStatus{
		State:      domain.LabelResolved,
		Value:      *r.SuppliedLabel,
		ResolvedAt: resolvedAt,
		Source:     domain.SimulatedOutcome,
	}
}
