package backend

import (
	"time"

	"github.com/opst/ripen/pkg/classifier/forest"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/evaluate"
)

// Configuration of ripen services.
//
// to get `BackendConfig` instance, use `TrySeal(*BackendConfigMarshall)` .
type BackendConfig struct {
	port      int32
	logLevel  string
	database  string
	telemetry *TelemetryConfig
	training  *TrainingConfig
	artifacts *ArtifactsConfig
	lock      *LockConfig
	kafka     *KafkaConfig
	auth      *AuthConfig
}

// Port where the API server listens.
func (c *BackendConfig) Port() int32 {
	return c.port
}

// Log level (debug, info, warn, error). default = "info"
func (c *BackendConfig) LogLevel() string {
	return c.logLevel
}

// Connection string for database.
func (c *BackendConfig) Database() string {
	return c.database
}

func (c *BackendConfig) Telemetry() *TelemetryConfig {
	return c.telemetry
}

func (c *BackendConfig) Training() *TrainingConfig {
	return c.training
}

func (c *BackendConfig) Artifacts() *ArtifactsConfig {
	return c.artifacts
}

func (c *BackendConfig) Lock() *LockConfig {
	return c.lock
}

// Configuration of the kafka consumer. nil if not configured.
func (c *BackendConfig) Kafka() *KafkaConfig {
	return c.kafka
}

func (c *BackendConfig) Auth() *AuthConfig {
	return c.auth
}

type TelemetryConfig struct {
	maturityWindow time.Duration
	maxBatchSize   int
}

// How long a reading waits for an outcome event before resolved negative.
func (c *TelemetryConfig) MaturityWindow() time.Duration {
	return c.maturityWindow
}

func (c *TelemetryConfig) MaxBatchSize() int {
	return c.maxBatchSize
}

type TrainingConfig struct {
	evaluation evaluate.Config
	forest     forest.Params
	thresholds domain.Thresholds
}

func (c *TrainingConfig) Evaluation() evaluate.Config {
	return c.evaluation
}

func (c *TrainingConfig) Forest() forest.Params {
	return c.forest
}

func (c *TrainingConfig) Thresholds() domain.Thresholds {
	return c.thresholds
}

// Where model artifacts are stored. Exactly one of Fs or S3 is not nil.
type ArtifactsConfig struct {
	fs *FsArtifactsConfig
	s3 *S3ArtifactsConfig
}

func (c *ArtifactsConfig) Fs() *FsArtifactsConfig {
	return c.fs
}

func (c *ArtifactsConfig) S3() *S3ArtifactsConfig {
	return c.s3
}

type FsArtifactsConfig struct {
	root string
}

func (c *FsArtifactsConfig) Root() string {
	return c.root
}

type S3ArtifactsConfig struct {
	endpoint        string
	bucket          string
	prefix          string
	accessKeyId     string
	secretAccessKey string
	secure          bool
}

func (c *S3ArtifactsConfig) Endpoint() string {
	return c.endpoint
}

func (c *S3ArtifactsConfig) Bucket() string {
	return c.bucket
}

func (c *S3ArtifactsConfig) Prefix() string {
	return c.prefix
}

func (c *S3ArtifactsConfig) AccessKeyId() string {
	return c.accessKeyId
}

func (c *S3ArtifactsConfig) SecretAccessKey() string {
	return c.secretAccessKey
}

func (c *S3ArtifactsConfig) Secure() bool {
	return c.secure
}

type LockBackend string

const (
	LockPostgres LockBackend = "postgres"
	LockRedis    LockBackend = "redis"
)

type LockConfig struct {
	backend LockBackend
	redis   *RedisConfig
}

// default = "postgres"
func (c *LockConfig) Backend() LockBackend {
	return c.backend
}

// non-nil when Backend is LockRedis.
func (c *LockConfig) Redis() *RedisConfig {
	return c.redis
}

type RedisConfig struct {
	addr     string
	password string
	db       int
	prefix   string
	ttl      time.Duration
}

func (c *RedisConfig) Addr() string {
	return c.addr
}

func (c *RedisConfig) Password() string {
	return c.password
}

func (c *RedisConfig) DB() int {
	return c.db
}

// prefix of lock keys. default = "ripen/lock/"
func (c *RedisConfig) Prefix() string {
	return c.prefix
}

func (c *RedisConfig) TTL() time.Duration {
	return c.ttl
}

type KafkaConfig struct {
	brokers []string
	topic   string
	groupId string
}

func (c *KafkaConfig) Brokers() []string {
	return c.brokers
}

func (c *KafkaConfig) Topic() string {
	return c.topic
}

func (c *KafkaConfig) GroupId() string {
	return c.groupId
}

type AuthConfig struct {
	signKey []byte
	issuer  string
}

// HS256 key signing and verifying bearer tokens.
func (c *AuthConfig) SignKey() []byte {
	return c.signKey
}

// "iss" claim of tokens. default = "ripen"
func (c *AuthConfig) Issuer() string {
	return c.issuer
}
