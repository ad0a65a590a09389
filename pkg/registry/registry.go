package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/model/db"
	"go.uber.org/zap"
)

// Decide whether the candidate should replace the champion.
//
// The candidate is promoted iff all of below hold:
//
//   - recall of the positive class >= MinRecall
//
//   - F1 score of the positive class >= MinF1
//
//   - if there is a champion, precision of the positive class >= champion's precision - MaxPrecisionRegression
//
// Relaxing thresholds never turns a promotion into a rejection.
func Decide(candidate domain.Metrics, champion *domain.Metrics, th domain.Thresholds) domain.PromotionDecision {
	c := candidate.Positive()
	failures := []string{}

	if c.Recall < th.MinRecall {
		failures = append(failures, fmt.Sprintf("recall %.4f < minimum %.4f", c.Recall, th.MinRecall))
	}
	if c.F1 < th.MinF1 {
		failures = append(failures, fmt.Sprintf("f1 %.4f < minimum %.4f", c.F1, th.MinF1))
	}
	if champion != nil {
		floor := champion.Positive().Precision - th.MaxPrecisionRegression
		if c.Precision < floor {
			failures = append(failures, fmt.Sprintf(
				"precision %.4f < champion's %.4f - %.4f",
				c.Precision, champion.Positive().Precision, th.MaxPrecisionRegression,
			))
		}
	}

	if len(failures) != 0 {
		return domain.PromotionDecision{
			Promoted: false,
			Reason:   "rejected: " + strings.Join(failures, ", "),
		}
	}

	reason := fmt.Sprintf("promoted: recall %.4f, f1 %.4f, precision %.4f", c.Recall, c.F1, c.Precision)
	if champion == nil {
		reason += " (no champion)"
	}
	return domain.PromotionDecision{Promoted: true, Reason: reason}
}

// Registry records model versions and manages which one is active.
type Registry struct {
	store  kdb.ModelInterface
	logger *zap.Logger
}

func New(store kdb.ModelInterface, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// Register a model version as a candidate.
func (r *Registry) Register(ctx context.Context, mv domain.ModelVersion) error {
	mv.Metrics = mv.Metrics.Rounded()
	return r.store.Register(ctx, mv)
}

func (r *Registry) Get(ctx context.Context, versionId string) (domain.ModelVersion, error) {
	return r.store.Get(ctx, versionId)
}

// List all versions, newer first.
func (r *Registry) List(ctx context.Context) ([]domain.ModelVersion, error) {
	return r.store.Find(ctx)
}

// Active returns the active version, or nil if there is none.
func (r *Registry) Active(ctx context.Context) (*domain.ModelVersion, error) {
	return r.store.Active(ctx)
}

// Promote a registered candidate, or reject it.
//
// # Args
//
// - ctx
//
// - candidate: registered candidate version.
//
// - champion: the active version which the candidate is compared with. nil if there is none.
//
// - th: thresholds of the promotion gate.
//
// # Returns
//
// - domain.PromotionDecision: the decision. Rejection is not an error.
//
// - error: failure on recording the decision.
// If the champion has been changed since it is read, it is domain.ErrChampionChanged
// and the candidate is left as a candidate.
func (r *Registry) Promote(
	ctx context.Context,
	candidate domain.ModelVersion,
	champion *domain.ModelVersion,
	th domain.Thresholds,
) (domain.PromotionDecision, error) {
	var championMetrics *domain.Metrics
	var championId *string
	if champion != nil {
		championMetrics = &champion.Metrics
		championId = &champion.VersionId
	}

	decision := Decide(candidate.Metrics, championMetrics, th)
	logger := r.logger.With(
		zap.String("candidate", candidate.VersionId),
		zap.Stringp("champion", championId),
		zap.Bool("promoted", decision.Promoted),
		zap.String("reason", decision.Reason),
	)

	if !decision.Promoted {
		if err := r.store.Reject(ctx, candidate.VersionId, decision.Reason); err != nil {
			return decision, err
		}
		logger.Info("candidate is rejected")
		return decision, nil
	}

	if err := r.store.Activate(
		ctx, candidate.VersionId, championId,
		[]domain.ModelStatus{domain.Candidate}, decision.Reason,
	); err != nil {
		return decision, err
	}
	logger.Info("candidate is promoted")
	return decision, nil
}

// rollback attempts before giving up on concurrent promotions.
const rollbackAttempts = 3

// Rollback reactivates a retired version, and retires the active one.
//
// If the version is active already, it does nothing.
// If the version is missing, error is domain.ErrVersionNotFound.
// If it is a candidate or rejected, error is domain.ErrVersionNotEligible.
func (r *Registry) Rollback(ctx context.Context, versionId string) (domain.ModelVersion, error) {
	var err error
	for range rollbackAttempts {
		var target domain.ModelVersion
		target, err = r.store.Get(ctx, versionId)
		if err != nil {
			return domain.ModelVersion{}, err
		}
		if target.Status == domain.Active {
			return target, nil
		}
		if target.Status != domain.Retired {
			return target, fmt.Errorf(
				"%w: %s is %s (only retired versions can be rolled back to)",
				domain.ErrVersionNotEligible, versionId, target.Status,
			)
		}

		var active *domain.ModelVersion
		active, err = r.store.Active(ctx)
		if err != nil {
			return domain.ModelVersion{}, err
		}
		var activeId *string
		if active != nil {
			activeId = &active.VersionId
		}

		err = r.store.Activate(
			ctx, versionId, activeId,
			[]domain.ModelStatus{domain.Retired},
			fmt.Sprintf("rollback from %s", describe(activeId)),
		)
		if errors.Is(err, domain.ErrChampionChanged) {
			r.logger.Warn("active version is changed while rollback. retrying.", zap.String("version_id", versionId))
			continue
		}
		if err != nil {
			return domain.ModelVersion{}, err
		}

		r.logger.Info("rolled back", zap.String("version_id", versionId), zap.Stringp("from", activeId))
		return r.store.Get(ctx, versionId)
	}
	return domain.ModelVersion{}, err
}

func describe(versionId *string) string {
	if versionId == nil {
		return "(none)"
	}
	return *versionId
}
