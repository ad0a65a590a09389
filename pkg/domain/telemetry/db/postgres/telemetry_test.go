package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/ripen/pkg/conn/db/postgres/pool/testenv"
	"github.com/opst/ripen/pkg/domain"
	outcomes "github.com/opst/ripen/pkg/domain/outcome/db/postgres"
	"github.com/opst/ripen/pkg/domain/telemetry/db/postgres"
	"github.com/opst/ripen/pkg/utils/try"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func reading(entityId int64, day int) domain.Reading {
	v := 1.5
	return domain.Reading{
		EntityId:  entityId,
		Timestamp: base.Add(time.Duration(day) * 24 * time.Hour),
		Measurements: domain.Measurements{
			LeadImpedanceOhms: 520, CaptureThresholdV: 0.9, RWaveSensingMv: 8.2, BatteryVoltageV: 2.9,
		},
		Derived: domain.Derived{LeadImpedanceOhmsRollingMean3d: &v},
		Label:   domain.Unresolved(),
	}
}

func resolved(r domain.Reading, value int, at time.Time) domain.Reading {
	r.Label = domain.LabelStatus{
		State: domain.LabelResolved, Value: value, ResolvedAt: at, Source: domain.SimulatedOutcome,
	}
	return r
}

func TestTelemetry_InsertAndCounts(t *testing.T) {
	ctx := context.Background()
	poolBroaker := testenv.NewPoolBroaker(ctx, t)
	pool := poolBroaker.GetPool(ctx, t)
	testee := postgres.New(pool)

	r1 := reading(1, 0)
	r2 := resolved(reading(1, 1), 1, base.Add(9*24*time.Hour))
	r3 := reading(2, 0)

	if n := try.To(testee.Insert(ctx, []domain.Reading{r1, r2})).OrFatal(t); n != 2 {
		t.Errorf("inserted: %d", n)
	}
	// duplicated key is skipped
	if n := try.To(testee.Insert(ctx, []domain.Reading{r1, r3})).OrFatal(t); n != 1 {
		t.Errorf("inserted: %d", n)
	}

	found := try.To(testee.Existing(ctx, []domain.ReadingKey{
		r1.Key(), r3.Key(), reading(3, 0).Key(),
	})).OrFatal(t)
	if len(found) != 2 {
		t.Errorf("unexpected keys: %v", found)
	}
	if _, ok := found[r3.Key()]; !ok {
		t.Errorf("%s is not found", r3.Key())
	}

	counts := try.To(testee.Counts(ctx)).OrFatal(t)
	expected := domain.TelemetryCounts{Total: 3, Unresolved: 2, Resolved: 1, Positive: 1}
	if counts != expected {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestTelemetry_PickUnresolved(t *testing.T) {
	ctx := context.Background()
	poolBroaker := testenv.NewPoolBroaker(ctx, t)
	window := 7 * 24 * time.Hour

	resolveAll := func(now time.Time) func(domain.EntityTimeline) ([]domain.Resolution, error) {
		return func(tl domain.EntityTimeline) ([]domain.Resolution, error) {
			res := []domain.Resolution{}
			for _, r := range tl.Unresolved {
				value := 0
				for _, e := range tl.Events {
					if e.Qualifies(r.Timestamp, window, now) {
						value = 1
					}
				}
				res = append(res, domain.Resolution{
					Key: r.Key(),
					Label: domain.LabelStatus{
						State: domain.LabelResolved, Value: value, ResolvedAt: now, Source: domain.ObservedOutcome,
					},
				})
			}
			return res, nil
		}
	}

	t.Run("nothing is picked before the window passes", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(testee.Insert(ctx, []domain.Reading{reading(1, 0)})).OrFatal(t)

		cursor, picked, err := testee.PickUnresolved(
			ctx, domain.EntityCursor{}, base.Add(24*time.Hour), window,
			func(domain.EntityTimeline) ([]domain.Resolution, error) {
				t.Error("callback is called")
				return nil, nil
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		if picked || cursor.Started {
			t.Errorf("unexpected pick: %v, %+v", picked, cursor)
		}
	})

	t.Run("entities are picked round robin, and labels are written", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(testee.Insert(ctx, []domain.Reading{reading(1, 0), reading(2, 0), reading(5, 0)})).OrFatal(t)

		now := base.Add(window + time.Hour)
		cursor := domain.EntityCursor{Head: 1, Started: true}

		visited := []int64{}
		for range 3 {
			next, picked, err := testee.PickUnresolved(ctx, cursor, now, window, resolveAll(now))
			if err != nil {
				t.Fatal(err)
			}
			if !picked {
				break
			}
			visited = append(visited, next.Head)
			cursor = next
		}
		if len(visited) != 3 || visited[0] != 2 || visited[1] != 5 || visited[2] != 1 {
			t.Errorf("unexpected order: %v", visited)
		}

		counts := try.To(testee.Counts(ctx)).OrFatal(t)
		if counts.Unresolved != 0 || counts.Resolved != 3 || counts.Positive != 0 {
			t.Errorf("unexpected counts: %+v", counts)
		}
	})

	t.Run("an outcome event in the window makes readings resolvable early", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(testee.Insert(ctx, []domain.Reading{reading(1, 0), reading(1, 1)})).OrFatal(t)
		try.To(outcomes.New(pool).Record(ctx, []domain.OutcomeEvent{{
			EventId:   "0f8fad5b-d9cb-469f-a165-70867728950e",
			EntityId:  1,
			EventTime: base.Add(36 * time.Hour),
		}})).OrFatal(t)

		now := base.Add(48 * time.Hour)
		var snapshot domain.EntityTimeline
		_, picked, err := testee.PickUnresolved(
			ctx, domain.EntityCursor{}, now, window,
			func(tl domain.EntityTimeline) ([]domain.Resolution, error) {
				snapshot = tl
				return resolveAll(now)(tl)
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		if !picked {
			t.Fatal("not picked")
		}
		if len(snapshot.Unresolved) != 2 || len(snapshot.Events) != 1 {
			t.Errorf("unexpected snapshot: %+v", snapshot)
		}

		matured := try.To(testee.Matured(ctx, now)).OrFatal(t)
		if len(matured) != 2 {
			t.Fatalf("unexpected matured readings: %+v", matured)
		}
		for _, r := range matured {
			if r.Label.Value != 1 || r.Label.Source != domain.ObservedOutcome {
				t.Errorf("unexpected label: %+v", r.Label)
			}
		}
		if early := try.To(testee.Matured(ctx, now.Add(-time.Second))).OrFatal(t); len(early) != 0 {
			t.Errorf("readings are matured before resolved: %+v", early)
		}
	})

	t.Run("error from the callback writes nothing", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(testee.Insert(ctx, []domain.Reading{reading(1, 0)})).OrFatal(t)

		expectedErr := errors.New("fake")
		now := base.Add(window + time.Hour)
		_, _, err := testee.PickUnresolved(
			ctx, domain.EntityCursor{}, now, window,
			func(domain.EntityTimeline) ([]domain.Resolution, error) { return nil, expectedErr },
		)
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if c := try.To(testee.Counts(ctx)).OrFatal(t); c.Unresolved != 1 {
			t.Errorf("unexpected counts: %+v", c)
		}
	})

	t.Run("resolved labels are never rewritten", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		r := reading(1, 0)
		try.To(testee.Insert(ctx, []domain.Reading{r, reading(1, 1)})).OrFatal(t)

		now := base.Add(window + 48*time.Hour)
		_, _, err := testee.PickUnresolved(
			ctx, domain.EntityCursor{}, now, window,
			func(tl domain.EntityTimeline) ([]domain.Resolution, error) {
				res := try.To(resolveAll(now)(tl)).OrFatal(t)
				// the same reading twice
				return append(res, res[0]), nil
			},
		)
		if !errors.Is(err, domain.ErrLabelAlreadyResolved) {
			t.Errorf("unexpected error: %v", err)
		}
		if c := try.To(testee.Counts(ctx)).OrFatal(t); c.Unresolved != 2 {
			t.Errorf("partial resolution is committed: %+v", c)
		}
	})
}
