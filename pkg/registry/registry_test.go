package registry_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/model/db/mock"
	"github.com/opst/ripen/pkg/registry"
	"github.com/opst/ripen/pkg/utils/try"
)

func metrics(precision, recall, f1 float64) domain.Metrics {
	return domain.Metrics{
		Report: map[string]domain.ClassReport{
			domain.PositiveClass: {Precision: precision, Recall: recall, F1: f1, Support: 10},
		},
	}
}

func TestDecide(t *testing.T) {
	type when struct {
		candidate domain.Metrics
		champion  *domain.Metrics
		th        domain.Thresholds
	}
	type then struct {
		promoted bool
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			actual := registry.Decide(when.candidate, when.champion, when.th)
			if actual.Promoted != then.promoted {
				t.Errorf("promoted: actual %v, expected %v (%s)", actual.Promoted, then.promoted, actual.Reason)
			}
			if actual.Reason == "" {
				t.Error("no reason")
			}
		}
	}

	champion := metrics(0.8, 0.7, 0.70)

	t.Run("a candidate passing all thresholds is promoted", theory(
		when{
			candidate: metrics(0.8, 0.8, 0.8),
			champion:  &champion,
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.6, MaxPrecisionRegression: 0.05},
		},
		then{promoted: true},
	))
	t.Run("the first candidate is compared only with thresholds", theory(
		when{
			candidate: metrics(0.1, 0.8, 0.7),
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.6, MaxPrecisionRegression: 0},
		},
		then{promoted: true},
	))
	t.Run("low recall is rejected", theory(
		when{
			candidate: metrics(0.9, 0.5, 0.7),
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.6},
		},
		then{promoted: false},
	))
	t.Run("low F1 is rejected", theory(
		when{
			candidate: metrics(0.9, 0.9, 0.65),
			champion:  &champion,
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.68, MaxPrecisionRegression: 1},
		},
		then{promoted: false},
	))
	t.Run("precision regression beyond the allowance is rejected", theory(
		when{
			candidate: metrics(0.74, 0.9, 0.8),
			champion:  &champion,
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.6, MaxPrecisionRegression: 0.05},
		},
		then{promoted: false},
	))
	t.Run("precision regression within the allowance is accepted", theory(
		when{
			candidate: metrics(0.76, 0.9, 0.8),
			champion:  &champion,
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.6, MaxPrecisionRegression: 0.05},
		},
		then{promoted: true},
	))
	t.Run("values just at thresholds are accepted", theory(
		when{
			candidate: metrics(0.5, 0.6, 0.6),
			th:        domain.Thresholds{MinRecall: 0.6, MinF1: 0.6},
		},
		then{promoted: true},
	))
}

func TestDecide_RelaxingThresholdsNeverRejects(t *testing.T) {
	levels := []float64{0, 0.25, 0.5, 0.65, 0.68, 0.7, 0.75, 1}
	candidates := []domain.Metrics{
		metrics(0.7, 0.7, 0.65), metrics(0.5, 0.9, 0.7), metrics(0.9, 0.6, 0.75), metrics(0, 0, 0),
	}
	champion := metrics(0.72, 0.7, 0.7)

	for ci, c := range candidates {
		for _, champ := range []*domain.Metrics{nil, &champion} {
			for _, recall := range levels {
				for _, f1 := range levels {
					for _, reg := range levels {
						th := domain.Thresholds{MinRecall: recall, MinF1: f1, MaxPrecisionRegression: reg}
						if !registry.Decide(c, champ, th).Promoted {
							continue
						}
						relaxed := []domain.Thresholds{
							{MinRecall: recall / 2, MinF1: f1, MaxPrecisionRegression: reg},
							{MinRecall: recall, MinF1: f1 / 2, MaxPrecisionRegression: reg},
							{MinRecall: recall, MinF1: f1, MaxPrecisionRegression: reg + 0.1},
						}
						for _, r := range relaxed {
							if !registry.Decide(c, champ, r).Promoted {
								t.Errorf(
									"candidate %d: promoted with %+v, but rejected with relaxed %+v",
									ci, th, r,
								)
							}
						}
					}
				}
			}
		}
	}
}

// fakeStore is an in-memory model store behind the mock, keeping at most one active version.
type fakeStore struct {
	versions map[string]domain.ModelVersion
	active   *string
}

func newFakeStore(versions ...domain.ModelVersion) (*fakeStore, *mock.ModelInterface) {
	f := &fakeStore{versions: map[string]domain.ModelVersion{}}
	for _, v := range versions {
		f.versions[v.VersionId] = v
		if v.Status == domain.Active {
			id := v.VersionId
			f.active = &id
		}
	}

	m := mock.NewModelInterface()
	m.Impl.Register = func(_ context.Context, mv domain.ModelVersion) error {
		mv.Status = domain.Candidate
		f.versions[mv.VersionId] = mv
		return nil
	}
	m.Impl.Get = func(_ context.Context, versionId string) (domain.ModelVersion, error) {
		mv, ok := f.versions[versionId]
		if !ok {
			return mv, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, versionId)
		}
		return mv, nil
	}
	m.Impl.Active = func(context.Context) (*domain.ModelVersion, error) {
		if f.active == nil {
			return nil, nil
		}
		mv := f.versions[*f.active]
		return &mv, nil
	}
	m.Impl.Activate = func(
		_ context.Context, versionId string, expected *string, eligible []domain.ModelStatus, reason string,
	) error {
		if (expected == nil) != (f.active == nil) || (expected != nil && *expected != *f.active) {
			return domain.ErrChampionChanged
		}
		mv, ok := f.versions[versionId]
		if !ok {
			return domain.ErrVersionNotFound
		}
		if mv.Status == domain.Active {
			return nil
		}
		if !slices.Contains(eligible, mv.Status) {
			return domain.ErrVersionNotEligible
		}
		if f.active != nil {
			prev := f.versions[*f.active]
			prev.Status = domain.Retired
			f.versions[prev.VersionId] = prev
		}
		mv.Status = domain.Active
		mv.Reason = reason
		f.versions[versionId] = mv
		f.active = &versionId
		return nil
	}
	m.Impl.Reject = func(_ context.Context, versionId string, reason string) error {
		mv := f.versions[versionId]
		if mv.Status != domain.Candidate {
			return domain.ErrVersionNotEligible
		}
		mv.Status = domain.Rejected
		mv.Reason = reason
		f.versions[versionId] = mv
		return nil
	}
	return f, m
}

func (f *fakeStore) countActive() int {
	n := 0
	for _, v := range f.versions {
		if v.Status == domain.Active {
			n += 1
		}
	}
	return n
}

func TestPromote(t *testing.T) {
	ctx := context.Background()
	th := domain.Thresholds{MinRecall: 0.5, MinF1: 0.68, MaxPrecisionRegression: 0.05}

	t.Run("a worse candidate is rejected and the champion stays active", func(t *testing.T) {
		c1 := domain.ModelVersion{VersionId: "c1", Status: domain.Active, Metrics: metrics(0.7, 0.7, 0.70)}
		c2 := domain.ModelVersion{VersionId: "c2", Status: domain.Candidate, Metrics: metrics(0.7, 0.6, 0.65)}
		store, m := newFakeStore(c1, c2)
		testee := registry.New(m, nil)

		decision := try.To(testee.Promote(ctx, c2, &c1, th)).OrFatal(t)

		if decision.Promoted {
			t.Errorf("promoted: %+v", decision)
		}
		if store.versions["c1"].Status != domain.Active {
			t.Errorf("c1 is %s", store.versions["c1"].Status)
		}
		if store.versions["c2"].Status != domain.Rejected || store.versions["c2"].Reason != decision.Reason {
			t.Errorf("c2 is %+v", store.versions["c2"])
		}
		if m.Calls.Activate.Times() != 0 {
			t.Error("Activate is called")
		}
	})

	t.Run("a better candidate replaces the champion", func(t *testing.T) {
		c1 := domain.ModelVersion{VersionId: "c1", Status: domain.Active, Metrics: metrics(0.7, 0.7, 0.70)}
		c2 := domain.ModelVersion{VersionId: "c2", Status: domain.Candidate, Metrics: metrics(0.72, 0.8, 0.76)}
		store, m := newFakeStore(c1, c2)
		testee := registry.New(m, nil)

		decision := try.To(testee.Promote(ctx, c2, &c1, th)).OrFatal(t)

		if !decision.Promoted {
			t.Errorf("not promoted: %+v", decision)
		}
		if store.versions["c1"].Status != domain.Retired || store.versions["c2"].Status != domain.Active {
			t.Errorf("unexpected statuses: %+v", store.versions)
		}
		if store.countActive() != 1 {
			t.Errorf("%d versions are active", store.countActive())
		}

		call, _ := m.Calls.Activate.Last()
		if call.ExpectedChampion == nil || *call.ExpectedChampion != "c1" {
			t.Errorf("unexpected expected champion: %v", call.ExpectedChampion)
		}
		if !slices.Equal(call.Eligible, []domain.ModelStatus{domain.Candidate}) {
			t.Errorf("unexpected eligible statuses: %v", call.Eligible)
		}
	})

	t.Run("the first candidate becomes active", func(t *testing.T) {
		c1 := domain.ModelVersion{VersionId: "c1", Status: domain.Candidate, Metrics: metrics(0.7, 0.7, 0.70)}
		store, m := newFakeStore(c1)
		testee := registry.New(m, nil)

		decision := try.To(testee.Promote(ctx, c1, nil, th)).OrFatal(t)
		if !decision.Promoted || store.versions["c1"].Status != domain.Active {
			t.Errorf("not promoted: %+v, %+v", decision, store.versions["c1"])
		}
	})

	t.Run("a champion changed concurrently fails the promotion", func(t *testing.T) {
		c1 := domain.ModelVersion{VersionId: "c1", Status: domain.Retired, Metrics: metrics(0.7, 0.7, 0.70)}
		c3 := domain.ModelVersion{VersionId: "c3", Status: domain.Active, Metrics: metrics(0.7, 0.7, 0.70)}
		c2 := domain.ModelVersion{VersionId: "c2", Status: domain.Candidate, Metrics: metrics(0.72, 0.8, 0.76)}
		store, m := newFakeStore(c1, c2, c3)
		testee := registry.New(m, nil)

		// c1 has been read as the champion, but c3 is active now.
		_, err := testee.Promote(ctx, c2, &c1, th)
		if !errors.Is(err, domain.ErrChampionChanged) {
			t.Errorf("unexpected error: %v", err)
		}
		if store.versions["c3"].Status != domain.Active || store.versions["c2"].Status != domain.Candidate {
			t.Errorf("unexpected statuses: %+v", store.versions)
		}
	})
}

func TestRollback(t *testing.T) {
	ctx := context.Background()

	versions := func() []domain.ModelVersion {
		return []domain.ModelVersion{
			{VersionId: "v1", Status: domain.Retired},
			{VersionId: "v2", Status: domain.Active},
			{VersionId: "v3", Status: domain.Rejected},
			{VersionId: "v4", Status: domain.Candidate},
		}
	}

	t.Run("a retired version becomes active", func(t *testing.T) {
		store, m := newFakeStore(versions()...)
		testee := registry.New(m, nil)

		actual := try.To(testee.Rollback(ctx, "v1")).OrFatal(t)
		if actual.Status != domain.Active {
			t.Errorf("v1 is %s", actual.Status)
		}
		if store.versions["v2"].Status != domain.Retired {
			t.Errorf("v2 is %s", store.versions["v2"].Status)
		}
		if store.countActive() != 1 {
			t.Errorf("%d versions are active", store.countActive())
		}
	})

	t.Run("rolling back to the active version does nothing", func(t *testing.T) {
		_, m := newFakeStore(versions()...)
		testee := registry.New(m, nil)

		actual := try.To(testee.Rollback(ctx, "v2")).OrFatal(t)
		if actual.Status != domain.Active {
			t.Errorf("v2 is %s", actual.Status)
		}
		if m.Calls.Activate.Times() != 0 {
			t.Error("Activate is called")
		}
	})

	for name, versionId := range map[string]string{"rejected": "v3", "candidate": "v4"} {
		t.Run("a "+name+" version is not eligible", func(t *testing.T) {
			store, m := newFakeStore(versions()...)
			testee := registry.New(m, nil)

			if _, err := testee.Rollback(ctx, versionId); !errors.Is(err, domain.ErrVersionNotEligible) {
				t.Errorf("unexpected error: %v", err)
			}
			if store.versions["v2"].Status != domain.Active {
				t.Errorf("v2 is %s", store.versions["v2"].Status)
			}
		})
	}

	t.Run("a missing version is not found", func(t *testing.T) {
		_, m := newFakeStore(versions()...)
		testee := registry.New(m, nil)

		if _, err := testee.Rollback(ctx, "v9"); !errors.Is(err, domain.ErrVersionNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
