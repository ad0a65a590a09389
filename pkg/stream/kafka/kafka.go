// Package kafka feeds telemetry batches from a kafka topic into ingestion.
//
// Each message value is a JSON array of readings, the same as the body of the ingest endpoint.
// Offsets are committed after the batch is ingested, so a batch can be delivered again after a crash.
// Ingestion deduplicates readings, and redelivery makes no change.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apitelemetry "github.com/opst/ripen/pkg/api/types/telemetry"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/opst/ripen/pkg/metrics"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the part of *kafkago.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var _ Reader = &kafkago.Reader{}

type Config struct {
	Brokers []string
	Topic   string
	GroupId string
}

// NewReader creates a reader joining the consumer group.
func NewReader(conf Config, logger *zap.Logger) *kafkago.Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     conf.Brokers,
		Topic:       conf.Topic,
		GroupID:     conf.GroupId,
		StartOffset: kafkago.FirstOffset,
		MaxBytes:    10 << 20,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	})
}

// Ingester is the destination of batches.
type Ingester interface {
	Ingest(ctx context.Context, path ingest.Path, batch []domain.Reading) (ingest.Result, error)
}

var _ Ingester = &ingest.Deduplicator{}

type Outcome string

const (
	// the batch is ingested and committed
	Ingested Outcome = "ingested"

	// the message is not a valid batch. It is committed without ingestion.
	Invalid Outcome = "invalid"
)

type Consumer struct {
	reader   Reader
	ingester Ingester
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type Option func(*Consumer) *Consumer

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) *Consumer {
		c.metrics = m
		return c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Consumer) *Consumer {
		c.logger = l
		return c
	}
}

func New(reader Reader, ingester Ingester, options ...Option) *Consumer {
	c := &Consumer{
		reader:   reader,
		ingester: ingester,
		metrics:  metrics.Nop(),
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

// Step consumes one message.
//
// Messages which are not valid batches (broken JSON, schema violation, too large batch)
// are logged, counted and committed, and Step returns Invalid without error.
//
// # Returns
//
// - Outcome
//
// - error: from the reader, or ingestion failure not caused by the message.
// When ingestion fails, the message is not committed and will be delivered again.
func (c *Consumer) Step(ctx context.Context) (Outcome, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return "", err
	}
	logger := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	outcome, err := c.handle(ctx, msg, logger)
	if err != nil {
		c.metrics.ConsumedMessages.WithLabelValues("failed").Inc()
		return "", err
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.metrics.ConsumedMessages.WithLabelValues("failed").Inc()
		return "", err
	}
	c.metrics.ConsumedMessages.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message, logger *zap.Logger) (Outcome, error) {
	var payload []apitelemetry.Reading
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		logger.Warn("message is not a batch of readings", zap.Error(err))
		return Invalid, nil
	}
	batch, err := apitelemetry.AsDomain(payload)
	if err != nil {
		logger.Warn("message has malformed readings", zap.Error(err))
		return Invalid, nil
	}

	result, err := c.ingester.Ingest(ctx, ingest.PathOnline, batch)
	if errors.Is(err, domain.ErrSchemaViolation) || errors.Is(err, domain.ErrBatchTooLarge) {
		logger.Warn("batch is rejected", zap.Error(err))
		return Invalid, nil
	} else if err != nil {
		return "", err
	}
	logger.Debug(
		"batch is ingested",
		zap.Int("received", result.Received),
		zap.Int("inserted", result.Inserted),
	)
	return Ingested, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
