package backend

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opst/ripen/pkg/classifier/forest"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/evaluate"
	"github.com/opst/ripen/pkg/ingest"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/backend.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of ripen services.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `BackendConfig`.
type BackendConfigMarshall struct {
	Port      int32                    `yaml:"port"`
	LogLevel  string                   `yaml:"logLevel,omitempty"`
	Database  string                   `yaml:"database"`
	Telemetry *TelemetryConfigMarshall `yaml:"telemetry,omitempty"`
	Training  *TrainingConfigMarshall  `yaml:"training,omitempty"`
	Artifacts *ArtifactsConfigMarshall `yaml:"artifacts"`
	Lock      *LockConfigMarshall      `yaml:"lock,omitempty"`
	Kafka     *KafkaConfigMarshall     `yaml:"kafka,omitempty"`
	Auth      *AuthConfigMarshall      `yaml:"auth"`
}

var _ Marshalled[*BackendConfig] = &BackendConfigMarshall{}

func (b *BackendConfigMarshall) trySeal(path string) *BackendConfig {
	logLevel := b.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	telemetry := b.Telemetry
	if telemetry == nil {
		telemetry = &TelemetryConfigMarshall{}
	}
	training := b.Training
	if training == nil {
		training = &TrainingConfigMarshall{}
	}
	lock := b.Lock
	if lock == nil {
		lock = &LockConfigMarshall{}
	}

	var kafka *KafkaConfig
	if b.Kafka != nil {
		kafka = b.Kafka.trySeal(path + ".kafka")
	}

	return &BackendConfig{
		port:      required(b.Port, path+".port"),
		logLevel:  logLevel,
		database:  required(b.Database, path+".database"),
		telemetry: telemetry.trySeal(path + ".telemetry"),
		training:  training.trySeal(path + ".training"),
		artifacts: nonnil(b.Artifacts, path+".artifacts").trySeal(path + ".artifacts"),
		lock:      lock.trySeal(path + ".lock"),
		kafka:     kafka,
		auth:      nonnil(b.Auth, path+".auth").trySeal(path + ".auth"),
	}
}

type TelemetryConfigMarshall struct {
	// duration, like "168h". default = "168h" (7 days)
	MaturityWindow string `yaml:"maturityWindow,omitempty"`

	// default = 2000
	MaxBatchSize int `yaml:"maxBatchSize,omitempty"`
}

func (t *TelemetryConfigMarshall) trySeal(path string) *TelemetryConfig {
	window := 7 * 24 * time.Hour
	if t.MaturityWindow != "" {
		window = duration(t.MaturityWindow, path+".maturityWindow")
	}
	if window <= 0 {
		panic(path + ".maturityWindow should be positive")
	}

	maxBatchSize := t.MaxBatchSize
	if maxBatchSize == 0 {
		maxBatchSize = ingest.DefaultMaxBatchSize
	}
	if maxBatchSize < 0 {
		panic(path + ".maxBatchSize should be positive")
	}
	return &TelemetryConfig{maturityWindow: window, maxBatchSize: maxBatchSize}
}

type TrainingConfigMarshall struct {
	MinRows      int                       `yaml:"minRows,omitempty"`
	TestFraction float64                   `yaml:"testFraction,omitempty"`
	Folds        int                       `yaml:"folds,omitempty"`
	Seed         *int64                    `yaml:"seed,omitempty"`
	Forest       *forest.Params            `yaml:"forest,omitempty"`
	Thresholds   *ThresholdsConfigMarshall `yaml:"thresholds,omitempty"`
}

func (t *TrainingConfigMarshall) trySeal(path string) *TrainingConfig {
	ev := evaluate.DefaultConfig()
	if t.MinRows != 0 {
		ev.MinRows = t.MinRows
	}
	if t.TestFraction != 0 {
		ev.TestFraction = t.TestFraction
	}
	if ev.TestFraction <= 0 || 1 <= ev.TestFraction {
		panic(path + ".testFraction should be in (0, 1)")
	}
	if t.Folds != 0 {
		ev.Folds = t.Folds
	}
	if ev.Folds < 2 {
		panic(path + ".folds should be 2 or more")
	}

	fp := forest.DefaultParams()
	if t.Forest != nil {
		fp = *t.Forest
	}
	if t.Seed != nil {
		ev.Seed = *t.Seed
		fp.Seed = *t.Seed
	}

	th := domain.Thresholds{MinRecall: 0.6, MinF1: 0.6, MaxPrecisionRegression: 0.05}
	if t.Thresholds != nil {
		th = t.Thresholds.trySeal(path + ".thresholds")
	}

	return &TrainingConfig{
		evaluation: ev,
		forest:     forest.New(fp).Params(),
		thresholds: th,
	}
}

type ThresholdsConfigMarshall struct {
	MinRecall              float64 `yaml:"minRecall"`
	MinF1                  float64 `yaml:"minF1"`
	MaxPrecisionRegression float64 `yaml:"maxPrecisionRegression"`
}

func (t *ThresholdsConfigMarshall) trySeal(path string) domain.Thresholds {
	for name, v := range map[string]float64{
		"minRecall":              t.MinRecall,
		"minF1":                  t.MinF1,
		"maxPrecisionRegression": t.MaxPrecisionRegression,
	} {
		if v < 0 || 1 < v {
			panic(fmt.Sprintf("%s.%s should be in [0, 1]", path, name))
		}
	}
	return domain.Thresholds{
		MinRecall:              t.MinRecall,
		MinF1:                  t.MinF1,
		MaxPrecisionRegression: t.MaxPrecisionRegression,
	}
}

type ArtifactsConfigMarshall struct {
	Fs *FsArtifactsConfigMarshall `yaml:"fs,omitempty"`
	S3 *S3ArtifactsConfigMarshall `yaml:"s3,omitempty"`
}

func (a *ArtifactsConfigMarshall) trySeal(path string) *ArtifactsConfig {
	if (a.Fs == nil) == (a.S3 == nil) {
		panic(path + " should have exactly one of .fs or .s3")
	}
	if a.Fs != nil {
		return &ArtifactsConfig{fs: a.Fs.trySeal(path + ".fs")}
	}
	return &ArtifactsConfig{s3: a.S3.trySeal(path + ".s3")}
}

type FsArtifactsConfigMarshall struct {
	Root string `yaml:"root"`
}

func (f *FsArtifactsConfigMarshall) trySeal(path string) *FsArtifactsConfig {
	return &FsArtifactsConfig{root: required(f.Root, path+".root")}
}

type S3ArtifactsConfigMarshall struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix,omitempty"`

	// environment variables holding credentials.
	// default = "AWS_ACCESS_KEY_ID" and "AWS_SECRET_ACCESS_KEY"
	AccessKeyIdEnv     string `yaml:"accessKeyIdEnv,omitempty"`
	SecretAccessKeyEnv string `yaml:"secretAccessKeyEnv,omitempty"`

	Secure bool `yaml:"secure,omitempty"`
}

func (s *S3ArtifactsConfigMarshall) trySeal(path string) *S3ArtifactsConfig {
	idEnv := s.AccessKeyIdEnv
	if idEnv == "" {
		idEnv = "AWS_ACCESS_KEY_ID"
	}
	secretEnv := s.SecretAccessKeyEnv
	if secretEnv == "" {
		secretEnv = "AWS_SECRET_ACCESS_KEY"
	}
	return &S3ArtifactsConfig{
		endpoint:        required(s.Endpoint, path+".endpoint"),
		bucket:          required(s.Bucket, path+".bucket"),
		prefix:          s.Prefix,
		accessKeyId:     required(os.Getenv(idEnv), "$"+idEnv),
		secretAccessKey: required(os.Getenv(secretEnv), "$"+secretEnv),
		secure:          s.Secure,
	}
}

type LockConfigMarshall struct {
	// "postgres" or "redis". default = "postgres"
	Backend string               `yaml:"backend,omitempty"`
	Redis   *RedisConfigMarshall `yaml:"redis,omitempty"`
}

func (l *LockConfigMarshall) trySeal(path string) *LockConfig {
	switch b := LockBackend(l.Backend); b {
	case "", LockPostgres:
		return &LockConfig{backend: LockPostgres}
	case LockRedis:
		return &LockConfig{
			backend: LockRedis,
			redis:   nonnil(l.Redis, path+".redis").trySeal(path + ".redis"),
		}
	default:
		panic(fmt.Sprintf("%s.backend should be postgres or redis: %s", path, b))
	}
}

type RedisConfigMarshall struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`

	// duration, like "30s". default = "30s"
	TTL string `yaml:"ttl,omitempty"`
}

func (r *RedisConfigMarshall) trySeal(path string) *RedisConfig {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "ripen/lock/"
	}
	ttl := 30 * time.Second
	if r.TTL != "" {
		ttl = duration(r.TTL, path+".ttl")
	}
	return &RedisConfig{
		addr:     required(r.Addr, path+".addr"),
		password: r.Password,
		db:       r.DB,
		prefix:   prefix,
		ttl:      ttl,
	}
}

type KafkaConfigMarshall struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupId string   `yaml:"groupId"`
}

func (k *KafkaConfigMarshall) trySeal(path string) *KafkaConfig {
	if len(k.Brokers) == 0 {
		panic(path + ".brokers is required")
	}
	return &KafkaConfig{
		brokers: k.Brokers,
		topic:   required(k.Topic, path+".topic"),
		groupId: required(k.GroupId, path+".groupId"),
	}
}

type AuthConfigMarshall struct {
	// file containing the HS256 key. Exactly one of SignKeyFile and SignKeyEnv is required.
	SignKeyFile string `yaml:"signKeyFile,omitempty"`

	// environment variable containing the HS256 key.
	SignKeyEnv string `yaml:"signKeyEnv,omitempty"`

	Issuer string `yaml:"issuer,omitempty"`
}

func (a *AuthConfigMarshall) trySeal(path string) *AuthConfig {
	if (a.SignKeyFile == "") == (a.SignKeyEnv == "") {
		panic(path + " should have exactly one of .signKeyFile or .signKeyEnv")
	}

	var key string
	if a.SignKeyFile != "" {
		content, err := os.ReadFile(a.SignKeyFile)
		if err != nil {
			panic(fmt.Errorf("%s.signKeyFile can not be read: %w", path, err))
		}
		key = strings.TrimSpace(string(content))
	} else {
		key = os.Getenv(a.SignKeyEnv)
	}
	if len(key) < 32 {
		panic(path + ": sign key should be 32 bytes or longer")
	}

	issuer := a.Issuer
	if issuer == "" {
		issuer = "ripen"
	}
	return &AuthConfig{signKey: []byte(key), issuer: issuer}
}

func duration(s string, path string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	return d
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
