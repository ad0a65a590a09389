package consume

import (
	"context"

	"github.com/opst/ripen/cmd/loops/recurring"
	"github.com/opst/ripen/pkg/stream/kafka"
)

type Consumer interface {
	Step(ctx context.Context) (kafka.Outcome, error)
}

var _ Consumer = &kafka.Consumer{}

// Counts of consumed messages by outcome.
type Counts map[kafka.Outcome]uint64

// initial value for task
func Seed() Counts {
	return Counts{}
}

// Task consumes one message per cycle. It blocks until a message arrives.
func Task(consumer Consumer) recurring.Task[Counts] {
	return func(ctx context.Context, counts Counts) (Counts, bool, error) {
		outcome, err := consumer.Step(ctx)
		if err != nil {
			return counts, false, err
		}
		counts[outcome] += 1
		return counts, true, nil
	}
}
