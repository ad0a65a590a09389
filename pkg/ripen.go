package ripen

import (
	"context"
	"errors"

	"github.com/opst/ripen/pkg/classifier/forest"
	bconf "github.com/opst/ripen/pkg/configs/backend"
	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	"github.com/opst/ripen/pkg/dataset"
	"github.com/opst/ripen/pkg/domain/lock"
	pglock "github.com/opst/ripen/pkg/domain/lock/postgres"
	redislock "github.com/opst/ripen/pkg/domain/lock/redis"
	"github.com/opst/ripen/pkg/domain/model/artifact"
	fsartifact "github.com/opst/ripen/pkg/domain/model/artifact/fs"
	s3artifact "github.com/opst/ripen/pkg/domain/model/artifact/s3"
	kmodeldb "github.com/opst/ripen/pkg/domain/model/db"
	kpgmodel "github.com/opst/ripen/pkg/domain/model/db/postgres"
	koutcomedb "github.com/opst/ripen/pkg/domain/outcome/db"
	kpgoutcome "github.com/opst/ripen/pkg/domain/outcome/db/postgres"
	kschemadb "github.com/opst/ripen/pkg/domain/schema/db"
	kpgschema "github.com/opst/ripen/pkg/domain/schema/db/postgres"
	ktelemetrydb "github.com/opst/ripen/pkg/domain/telemetry/db"
	kpgtelemetry "github.com/opst/ripen/pkg/domain/telemetry/db/postgres"
	"github.com/opst/ripen/pkg/evaluate"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/opst/ripen/pkg/labels"
	"github.com/opst/ripen/pkg/metrics"
	"github.com/opst/ripen/pkg/predict"
	"github.com/opst/ripen/pkg/registry"
	"github.com/opst/ripen/pkg/training"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores are persistent parts of ripen.
type Stores interface {
	Telemetry() ktelemetrydb.TelemetryInterface
	Outcomes() koutcomedb.OutcomeInterface
	Models() kmodeldb.ModelInterface
	Artifacts() artifact.Interface
	Lock() lock.Interface

	// Schema is nil when schema repository is not given.
	Schema() kschemadb.SchemaInterface
}

// Ripen is the whole training loop, built from a config.
type Ripen interface {
	Stores
	Config() *bconf.BackendConfig
	Metrics() *metrics.Metrics
	Logger() *zap.Logger

	Ingester() *ingest.Deduplicator
	Resolver() *labels.Resolver
	Registry() *registry.Registry
	Trainer() *training.Job
	Scorer() *predict.Scorer

	Close() error
}

type ripen struct {
	config  *bconf.BackendConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	pool      kpool.Pool
	redis     goredis.UniversalClient
	schema    kschemadb.SchemaInterface
	telemetry ktelemetrydb.TelemetryInterface
	outcomes  koutcomedb.OutcomeInterface
	models    kmodeldb.ModelInterface
	artifacts artifact.Interface
	lock      lock.Interface

	ingester *ingest.Deduplicator
	resolver *labels.Resolver
	registry *registry.Registry
	trainer  *training.Job
	scorer   *predict.Scorer
}

var _ Ripen = &ripen{}

type options struct {
	schemaRepository string
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

type Option func(*options) *options

// WithSchemaRepository enables schema version checks with the repository.
func WithSchemaRepository(path string) Option {
	return func(o *options) *options {
		o.schemaRepository = path
		return o
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) *options {
		o.metrics = m
		return o
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) *options {
		o.logger = l
		return o
	}
}

// Attach connects to stores configured, and builds components on them.
func Attach(ctx context.Context, conf *bconf.BackendConfig, opts ...Option) (Ripen, error) {
	o := &options{metrics: metrics.Nop(), logger: zap.NewNop()}
	for _, opt := range opts {
		o = opt(o)
	}

	pool, err := kpool.Connect(ctx, conf.Database())
	if err != nil {
		return nil, err
	}
	r := &ripen{
		config:    conf,
		metrics:   o.metrics,
		logger:    o.logger,
		pool:      pool,
		telemetry: kpgtelemetry.New(pool),
		outcomes:  kpgoutcome.New(pool),
		models:    kpgmodel.New(pool),
	}
	if o.schemaRepository != "" {
		r.schema = kpgschema.New(pool, o.schemaRepository)
	}

	if err := r.attachStorage(); err != nil {
		r.Close()
		return nil, err
	}
	r.build()
	return r, nil
}

func (r *ripen) attachStorage() error {
	switch a := r.config.Artifacts(); {
	case a.Fs() != nil:
		store, err := fsartifact.New(a.Fs().Root())
		if err != nil {
			return err
		}
		r.artifacts = store
	case a.S3() != nil:
		s3 := a.S3()
		store, err := s3artifact.New(s3artifact.Config{
			Endpoint:        s3.Endpoint(),
			AccessKeyId:     s3.AccessKeyId(),
			SecretAccessKey: s3.SecretAccessKey(),
			Bucket:          s3.Bucket(),
			Prefix:          s3.Prefix(),
			Secure:          s3.Secure(),
		})
		if err != nil {
			return err
		}
		r.artifacts = store
	default:
		return errors.New("artifact store is not configured")
	}

	switch l := r.config.Lock(); l.Backend() {
	case bconf.LockRedis:
		rc := l.Redis()
		r.redis = goredis.NewClient(&goredis.Options{
			Addr:     rc.Addr(),
			Password: rc.Password(),
			DB:       rc.DB(),
		})
		r.lock = redislock.New(r.redis, rc.Prefix(), rc.TTL())
	default:
		r.lock = pglock.New(r.pool)
	}
	return nil
}

func (r *ripen) build() {
	tc := r.config.Telemetry()
	trc := r.config.Training()
	logger := r.logger

	r.ingester = ingest.New(
		r.telemetry, tc.MaturityWindow(),
		ingest.WithMaxBatchSize(tc.MaxBatchSize()),
		ingest.WithMetrics(r.metrics),
		ingest.WithLogger(logger.Named("ingest")),
	)
	r.resolver = labels.New(
		r.telemetry, tc.MaturityWindow(),
		labels.WithMetrics(r.metrics),
		labels.WithLogger(logger.Named("labels")),
	)
	r.registry = registry.New(r.models, logger.Named("registry"))

	evaluator := evaluate.New(forest.New(trc.Forest()), trc.Evaluation(), logger.Named("evaluate"))
	r.trainer = training.New(
		r.lock,
		r.resolver,
		dataset.New(r.telemetry, logger.Named("dataset")),
		evaluator,
		r.artifacts,
		r.registry,
		trc.Thresholds(),
		training.WithMetrics(r.metrics),
		training.WithLogger(logger.Named("training")),
	)
	r.scorer = predict.New(r.registry, r.artifacts, forest.Loader{}, logger.Named("predict"))
}

func (r *ripen) Config() *bconf.BackendConfig {
	return r.config
}

func (r *ripen) Metrics() *metrics.Metrics {
	return r.metrics
}

func (r *ripen) Logger() *zap.Logger {
	return r.logger
}

func (r *ripen) Schema() kschemadb.SchemaInterface {
	return r.schema
}

func (r *ripen) Telemetry() ktelemetrydb.TelemetryInterface {
	return r.telemetry
}

func (r *ripen) Outcomes() koutcomedb.OutcomeInterface {
	return r.outcomes
}

func (r *ripen) Models() kmodeldb.ModelInterface {
	return r.models
}

func (r *ripen) Artifacts() artifact.Interface {
	return r.artifacts
}

func (r *ripen) Lock() lock.Interface {
	return r.lock
}

func (r *ripen) Ingester() *ingest.Deduplicator {
	return r.ingester
}

func (r *ripen) Resolver() *labels.Resolver {
	return r.resolver
}

func (r *ripen) Registry() *registry.Registry {
	return r.registry
}

func (r *ripen) Trainer() *training.Job {
	return r.trainer
}

func (r *ripen) Scorer() *predict.Scorer {
	return r.scorer
}

func (r *ripen) Close() error {
	var err error
	if r.redis != nil {
		err = r.redis.Close()
	}
	r.pool.Close()
	return err
}
