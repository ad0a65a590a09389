package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/opst/ripen/pkg/metrics"
	"github.com/opst/ripen/pkg/stream/kafka"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
)

type fakeReader struct {
	messages  []kafkago.Message
	fetchErr  error
	commitErr error
	committed []kafkago.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if r.fetchErr != nil {
		return kafkago.Message{}, r.fetchErr
	}
	if len(r.messages) == 0 {
		return kafkago.Message{}, context.Canceled
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeIngester struct {
	batches [][]domain.Reading
	paths   []ingest.Path
	err     error
}

func (i *fakeIngester) Ingest(ctx context.Context, path ingest.Path, batch []domain.Reading) (ingest.Result, error) {
	i.paths = append(i.paths, path)
	i.batches = append(i.batches, batch)
	if i.err != nil {
		return ingest.Result{}, i.err
	}
	return ingest.Result{Received: len(batch), Inserted: len(batch)}, nil
}

const validBatch = `[
	{"entity_id": 1, "timestamp": 0, "lead_impedance_ohms": 500, "capture_threshold_v": 0.7, "r_wave_sensing_mv": 9, "battery_voltage_v": 2.8, "label": 1},
	{"patient_id": 2, "timestamp": 60, "lead_impedance_ohms": 510, "capture_threshold_v": 0.8, "r_wave_sensing_mv": 8, "battery_voltage_v": 2.7}
]`

func TestConsumer_Step(t *testing.T) {
	type when struct {
		value     string
		ingestErr error
		commitErr error
	}
	type then struct {
		outcome   kafka.Outcome
		err       error
		ingested  bool
		committed bool
		metric    string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			reader := &fakeReader{
				messages:  []kafkago.Message{{Topic: "telemetry", Offset: 42, Value: []byte(when.value)}},
				commitErr: when.commitErr,
			}
			ingester := &fakeIngester{err: when.ingestErr}
			m := metrics.Nop()
			testee := kafka.New(reader, ingester, kafka.WithMetrics(m))

			outcome, err := testee.Step(context.Background())
			if then.err == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, then.err) {
				t.Errorf("unexpected error: %v", err)
			}
			if outcome != then.outcome {
				t.Errorf("unexpected outcome: %s", outcome)
			}

			if ingested := len(ingester.batches) != 0; ingested != then.ingested {
				t.Errorf("ingested: (expected, actual) = (%v, %v)", then.ingested, ingested)
			}
			for _, p := range ingester.paths {
				if p != ingest.PathOnline {
					t.Errorf("unexpected path: %s", p)
				}
			}
			if committed := len(reader.committed) != 0; committed != then.committed {
				t.Errorf("committed: (expected, actual) = (%v, %v)", then.committed, committed)
			}
			if got := testutil.ToFloat64(m.ConsumedMessages.WithLabelValues(then.metric)); got != 1 {
				t.Errorf("metric %s: %v", then.metric, got)
			}
		}
	}

	t.Run("a valid batch is ingested on the online path and committed", theory(
		when{value: validBatch},
		then{outcome: kafka.Ingested, ingested: true, committed: true, metric: "ingested"},
	))

	t.Run("broken json is committed without ingestion", theory(
		when{value: `{"entity_id": `},
		then{outcome: kafka.Invalid, committed: true, metric: "invalid"},
	))

	t.Run("readings lacking fields are committed without ingestion", theory(
		when{value: `[{"entity_id": 1, "timestamp": 0}]`},
		then{outcome: kafka.Invalid, committed: true, metric: "invalid"},
	))

	t.Run("batch rejected by ingestion is committed", theory(
		when{value: validBatch, ingestErr: domain.ErrBatchTooLarge},
		then{outcome: kafka.Invalid, ingested: true, committed: true, metric: "invalid"},
	))

	{
		storeErr := errors.New("fake store error")
		t.Run("ingestion failure leaves the message uncommitted", theory(
			when{value: validBatch, ingestErr: storeErr},
			then{err: storeErr, ingested: true, committed: false, metric: "failed"},
		))
	}

	{
		commitErr := errors.New("fake commit error")
		t.Run("commit failure is reported", theory(
			when{value: validBatch, commitErr: commitErr},
			then{err: commitErr, ingested: true, committed: false, metric: "failed"},
		))
	}

	t.Run("fetch error is returned as it is", func(t *testing.T) {
		fetchErr := errors.New("fake fetch error")
		reader := &fakeReader{fetchErr: fetchErr}
		testee := kafka.New(reader, &fakeIngester{})
		if _, err := testee.Step(context.Background()); !errors.Is(err, fetchErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("decoded readings are passed to ingestion", func(t *testing.T) {
		reader := &fakeReader{messages: []kafkago.Message{{Value: []byte(validBatch)}}}
		ingester := &fakeIngester{}
		testee := kafka.New(reader, ingester)
		if _, err := testee.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
		batch := ingester.batches[0]
		if len(batch) != 2 || batch[0].EntityId != 1 || batch[1].EntityId != 2 {
			t.Errorf("unexpected batch: %+v", batch)
		}
		if l := batch[0].SuppliedLabel; l == nil || *l != 1 {
			t.Errorf("unexpected label: %v", l)
		}
	})
}
