package main

import (
	"context"
	"fmt"
	"time"

	"github.com/opst/ripen/cmd/loops/recurring"
	"github.com/opst/ripen/cmd/loops/tasks/consume"
	"github.com/opst/ripen/cmd/loops/tasks/resolve"
	"github.com/opst/ripen/cmd/loops/tasks/train"
	ripen "github.com/opst/ripen/pkg"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/loop"
	"github.com/opst/ripen/pkg/stream/kafka"
	"go.uber.org/zap"
)

// Wrapper for monitoring loop tasks
//
// It logs the start and end of each cycle.
func monitor[T any](logger *zap.Logger, task loop.Task[T]) loop.Task[T] {
	var counter uint64
	return func(ctx context.Context, t T) (ret T, next loop.Next) {
		counter += 1
		timestamp := time.Now()

		logger.Debug("task start", zap.Uint64("cycle", counter))
		defer func() {
			logger.Debug(
				"task end",
				zap.Uint64("cycle", counter),
				zap.Duration("elapsed", time.Since(timestamp)),
				zap.Stringer("next", next),
				zap.String("value", fmt.Sprintf("%+v", ret)),
			)
		}()

		ret, next = task(ctx, t)
		return
	}
}

// Manifest for starting a loop, which determines how the loop should behave.
type LoopManifest struct {
	Type domain.LoopType

	// Policy for the looping
	Policy recurring.Policy
}

func StartLoop(ctx context.Context, logger *zap.Logger, r ripen.Ripen, manifest LoopManifest) error {
	switch manifest.Type {
	case domain.Resolve:
		return StartResolveLoop(ctx, logger, r, manifest)
	case domain.Train:
		return StartTrainLoop(ctx, logger, r, manifest)
	case domain.Consume:
		return StartConsumeLoop(ctx, logger, r, manifest)
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownLoopType, manifest.Type)
}

func StartResolveLoop(ctx context.Context, logger *zap.Logger, r ripen.Ripen, manifest LoopManifest) error {
	l := logger.Named("resolve")
	_, err := loop.Start(
		ctx, resolve.Seed(),
		monitor(
			l,
			resolve.Task(l, r.Resolver(), time.Now).Applied(manifest.Policy),
		),
		loop.WithTimeout(30*time.Second),
	)
	return err
}

func StartTrainLoop(ctx context.Context, logger *zap.Logger, r ripen.Ripen, manifest LoopManifest) error {
	l := logger.Named("train")
	_, err := loop.Start(
		ctx, train.Seed(),
		monitor(
			l,
			train.Task(l, r.Trainer()).Applied(manifest.Policy),
		),
	)
	return err
}

func StartConsumeLoop(ctx context.Context, logger *zap.Logger, r ripen.Ripen, manifest LoopManifest) error {
	kconf := r.Config().Kafka()
	if kconf == nil {
		return fmt.Errorf("kafka is not configured")
	}
	l := logger.Named("consume")

	consumer := kafka.New(
		kafka.NewReader(
			kafka.Config{Brokers: kconf.Brokers(), Topic: kconf.Topic(), GroupId: kconf.GroupId()},
			l.Named("reader"),
		),
		r.Ingester(),
		kafka.WithMetrics(r.Metrics()),
		kafka.WithLogger(l),
	)
	defer func() {
		if err := consumer.Close(); err != nil {
			l.Warn("closing reader", zap.Error(err))
		}
	}()

	counts, err := loop.Start(
		ctx, consume.Seed(),
		monitor(l, consume.Task(consumer).Applied(manifest.Policy)),
	)
	l.Info(
		"consumer stopped",
		zap.Uint64("ingested", counts[kafka.Ingested]),
		zap.Uint64("invalid", counts[kafka.Invalid]),
	)
	return err
}
