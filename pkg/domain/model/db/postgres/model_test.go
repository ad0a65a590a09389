package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/ripen/pkg/conn/db/postgres/pool/testenv"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/model/db/postgres"
	"github.com/opst/ripen/pkg/utils/try"
)

func version(id string, trainedAt time.Time) domain.ModelVersion {
	return domain.ModelVersion{
		VersionId:       id,
		TrainedAt:       trainedAt,
		TrainingWindow:  domain.TimeWindow{From: trainedAt.Add(-72 * time.Hour), To: trainedAt},
		RowCount:        120,
		Hyperparameters: map[string]any{"n_estimators": float64(100)},
		Metrics: domain.Metrics{
			HeldOutAccuracy: 0.9,
			Report: map[string]domain.ClassReport{
				domain.PositiveClass: {Precision: 0.8, Recall: 0.7, F1: 0.75, Support: 10},
			},
		},
		ArtifactRef:  "models/" + id + ".json",
		FeatureNames: domain.FeatureNames,
		Reason:       "trained",
	}
}

func ptr[T any](v T) *T { return &v }

func TestModel(t *testing.T) {
	ctx := context.Background()
	poolBroaker := testenv.NewPoolBroaker(ctx, t)

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	eligible := []domain.ModelStatus{domain.Candidate}

	t.Run("registered version is a candidate", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)

		mv := version("v1", base)
		mv.Status = domain.Active // ignored
		if err := testee.Register(ctx, mv); err != nil {
			t.Fatal(err)
		}

		actual := try.To(testee.Get(ctx, "v1")).OrFatal(t)
		if actual.Status != domain.Candidate {
			t.Errorf("unexpected status: %s", actual.Status)
		}
		if !actual.TrainedAt.Equal(base) || actual.RowCount != 120 || actual.ArtifactRef != "models/v1.json" {
			t.Errorf("unexpected version: %+v", actual)
		}
		if actual.Metrics.Report[domain.PositiveClass].Recall != 0.7 {
			t.Errorf("unexpected metrics: %+v", actual.Metrics)
		}
		if len(actual.FeatureNames) != len(domain.FeatureNames) {
			t.Errorf("unexpected feature names: %v", actual.FeatureNames)
		}
		if active := try.To(testee.Active(ctx)).OrFatal(t); active != nil {
			t.Errorf("unexpected active version: %+v", active)
		}
	})

	t.Run("unknown version is not found", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)

		if _, err := testee.Get(ctx, "nope"); !errors.Is(err, domain.ErrVersionNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
		if err := testee.Activate(ctx, "nope", nil, eligible, ""); !errors.Is(err, domain.ErrVersionNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("activation retires the champion, and rollback brings it back", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(0, testee.Register(ctx, version("v1", base))).OrFatal(t)
		try.To(0, testee.Register(ctx, version("v2", base.Add(time.Hour)))).OrFatal(t)

		if err := testee.Activate(ctx, "v1", nil, eligible, "first"); err != nil {
			t.Fatal(err)
		}
		if err := testee.Activate(ctx, "v2", ptr("v1"), eligible, "better"); err != nil {
			t.Fatal(err)
		}

		active := try.To(testee.Active(ctx)).OrFatal(t)
		if active == nil || active.VersionId != "v2" {
			t.Fatalf("unexpected active version: %+v", active)
		}
		if v1 := try.To(testee.Get(ctx, "v1")).OrFatal(t); v1.Status != domain.Retired {
			t.Errorf("unexpected status of v1: %s", v1.Status)
		}

		if err := testee.Activate(ctx, "v1", ptr("v2"), []domain.ModelStatus{domain.Retired}, "rollback"); err != nil {
			t.Fatal(err)
		}
		active = try.To(testee.Active(ctx)).OrFatal(t)
		if active == nil || active.VersionId != "v1" || active.Reason != "rollback" {
			t.Errorf("unexpected active version: %+v", active)
		}

		all := try.To(testee.Find(ctx)).OrFatal(t)
		if len(all) != 2 || all[0].VersionId != "v2" || all[1].VersionId != "v1" {
			t.Errorf("unexpected versions: %+v", all)
		}
	})

	t.Run("activation fails when the champion has changed", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(0, testee.Register(ctx, version("v1", base))).OrFatal(t)
		try.To(0, testee.Register(ctx, version("v2", base.Add(time.Hour)))).OrFatal(t)
		try.To(0, testee.Activate(ctx, "v1", nil, eligible, "first")).OrFatal(t)

		if err := testee.Activate(ctx, "v2", nil, eligible, ""); !errors.Is(err, domain.ErrChampionChanged) {
			t.Errorf("unexpected error: %v", err)
		}
		if v2 := try.To(testee.Get(ctx, "v2")).OrFatal(t); v2.Status != domain.Candidate {
			t.Errorf("v2 is changed: %s", v2.Status)
		}
	})

	t.Run("rejected version can not be activated", func(t *testing.T) {
		pool := poolBroaker.GetPool(ctx, t)
		testee := postgres.New(pool)
		try.To(0, testee.Register(ctx, version("v1", base))).OrFatal(t)

		if err := testee.Reject(ctx, "v1", "recall too low"); err != nil {
			t.Fatal(err)
		}
		if err := testee.Reject(ctx, "v1", "again"); !errors.Is(err, domain.ErrVersionNotEligible) {
			t.Errorf("unexpected error: %v", err)
		}
		err := testee.Activate(
			ctx, "v1", nil,
			[]domain.ModelStatus{domain.Candidate, domain.Retired}, "",
		)
		if !errors.Is(err, domain.ErrVersionNotEligible) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
