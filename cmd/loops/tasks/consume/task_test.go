package consume_test

import (
	"context"
	"errors"
	"testing"

	"github.com/opst/ripen/cmd/loops/tasks/consume"
	"github.com/opst/ripen/pkg/stream/kafka"
)

type fakeConsumer struct {
	outcomes []kafka.Outcome
	err      error
}

func (f *fakeConsumer) Step(context.Context) (kafka.Outcome, error) {
	if len(f.outcomes) == 0 {
		return "", f.err
	}
	o := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return o, nil
}

func TestTask(t *testing.T) {
	t.Run("it counts outcomes of consumed messages", func(t *testing.T) {
		consumer := &fakeConsumer{
			outcomes: []kafka.Outcome{kafka.Ingested, kafka.Invalid, kafka.Ingested},
			err:      context.Canceled,
		}
		task := consume.Task(consumer)

		counts := consume.Seed()
		for range 3 {
			var updated bool
			var err error
			counts, updated, err = task(context.Background(), counts)
			if err != nil {
				t.Fatal(err)
			}
			if !updated {
				t.Error("consumed message is not reported as update")
			}
		}
		if counts[kafka.Ingested] != 2 || counts[kafka.Invalid] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}

		_, updated, err := task(context.Background(), counts)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
		if updated {
			t.Error("failed step is reported as update")
		}
	})
}
