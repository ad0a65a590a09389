package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	"github.com/opst/ripen/pkg/domain"
	pgerr "github.com/opst/ripen/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/opst/ripen/pkg/domain/model/db"
	xe "github.com/opst/ripen/pkg/errors"
)

type modelPG struct {
	pool kpool.Pool
}

var _ kdb.ModelInterface = &modelPG{}

func New(pool kpool.Pool) kdb.ModelInterface {
	return &modelPG{pool: pool}
}

func notFound(versionId string) error {
	return fmt.Errorf(
		"%w: %w", domain.ErrVersionNotFound,
		pgerr.Missing{Table: "model_version", Identity: versionId},
	)
}

func (m *modelPG) Register(ctx context.Context, mv domain.ModelVersion) error {
	hyperparameters, err := json.Marshal(mv.Hyperparameters)
	if err != nil {
		return xe.Wrap(err)
	}
	metrics, err := json.Marshal(mv.Metrics)
	if err != nil {
		return xe.Wrap(err)
	}
	featureNames := mv.FeatureNames
	if featureNames == nil {
		featureNames = []string{}
	}

	if _, err := m.pool.Exec(
		ctx,
		`
		insert into "model_version" (
			"version_id", "trained_at", "window_from", "window_to", "row_count",
			"hyperparameters", "metrics", "feature_names",
			"status", "artifact_ref", "reason", "status_changed_at"
		)
		values ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, 'candidate', $9, $10, now())
		`,
		mv.VersionId, mv.TrainedAt.UTC(), mv.TrainingWindow.From.UTC(), mv.TrainingWindow.To.UTC(), mv.RowCount,
		hyperparameters, metrics, featureNames,
		mv.ArtifactRef, mv.Reason,
	); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

const modelColumnList = `
	"version_id", "trained_at", "window_from", "window_to", "row_count",
	"hyperparameters", "metrics", "feature_names",
	"status", "artifact_ref", "reason", "status_changed_at"
`

func scanModel(row pgx.Row) (domain.ModelVersion, error) {
	var mv domain.ModelVersion
	var hyperparameters, metrics []byte
	var status string
	if err := row.Scan(
		&mv.VersionId, &mv.TrainedAt, &mv.TrainingWindow.From, &mv.TrainingWindow.To, &mv.RowCount,
		&hyperparameters, &metrics, &mv.FeatureNames,
		&status, &mv.ArtifactRef, &mv.Reason, &mv.StatusChangedAt,
	); err != nil {
		return mv, err
	}
	mv.TrainedAt = mv.TrainedAt.UTC()
	mv.TrainingWindow.From = mv.TrainingWindow.From.UTC()
	mv.TrainingWindow.To = mv.TrainingWindow.To.UTC()
	mv.StatusChangedAt = mv.StatusChangedAt.UTC()

	st, err := domain.AsModelStatus(status)
	if err != nil {
		return mv, err
	}
	mv.Status = st

	if err := json.Unmarshal(hyperparameters, &mv.Hyperparameters); err != nil {
		return mv, err
	}
	if err := json.Unmarshal(metrics, &mv.Metrics); err != nil {
		return mv, err
	}
	return mv, nil
}

func (m *modelPG) Get(ctx context.Context, versionId string) (domain.ModelVersion, error) {
	mv, err := scanModel(m.pool.QueryRow(
		ctx,
		`select `+modelColumnList+` from "model_version" where "version_id" = $1`,
		versionId,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return mv, notFound(versionId)
	} else if err != nil {
		return mv, xe.Wrap(err)
	}
	return mv, nil
}

func (m *modelPG) Find(ctx context.Context) ([]domain.ModelVersion, error) {
	rows, err := m.pool.Query(
		ctx,
		`select `+modelColumnList+` from "model_version"
		order by "trained_at" desc, "version_id" desc`,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	mvs := []domain.ModelVersion{}
	for rows.Next() {
		mv, err := scanModel(rows)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		mvs = append(mvs, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return mvs, nil
}

func (m *modelPG) Active(ctx context.Context) (*domain.ModelVersion, error) {
	mv, err := scanModel(m.pool.QueryRow(
		ctx,
		`
		select `+modelColumnList+`
		from "model_version"
		where "version_id" = (select "version_id" from "active_model" where "singleton")
		`,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, xe.Wrap(err)
	}
	return &mv, nil
}

func (m *modelPG) Activate(
	ctx context.Context,
	versionId string,
	expectedChampion *string,
	eligible []domain.ModelStatus,
	reason string,
) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	// promotions are serialized on this row.
	var current *string
	if err := tx.QueryRow(
		ctx,
		`select "version_id" from "active_model" where "singleton" for update`,
	).Scan(&current); err != nil {
		return xe.Wrap(err)
	}

	if !sameVersion(current, expectedChampion) {
		return xe.Wrap(fmt.Errorf(
			"%w: expected %s, but %s",
			domain.ErrChampionChanged, describe(expectedChampion), describe(current),
		))
	}

	var status string
	if err := tx.QueryRow(
		ctx,
		`select "status" from "model_version" where "version_id" = $1 for update`,
		versionId,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(versionId)
		}
		return xe.Wrap(err)
	}

	if domain.ModelStatus(status) == domain.Active {
		return nil
	}
	if !slices.Contains(eligible, domain.ModelStatus(status)) {
		return xe.Wrap(pgerr.Conflict{
			Table: "model_version", Identity: versionId,
			Reason: fmt.Sprintf("%s version can not be activated", status),
			Cause:  domain.ErrVersionNotEligible,
		})
	}

	// retire first: at most one active row.
	if current != nil {
		if _, err := tx.Exec(
			ctx,
			`
			update "model_version"
			set "status" = 'retired', "reason" = $2, "status_changed_at" = now()
			where "version_id" = $1 and "status" = 'active'
			`,
			*current, fmt.Sprintf("superseded by %s", versionId),
		); err != nil {
			return xe.Wrap(err)
		}
	}

	if _, err := tx.Exec(
		ctx,
		`
		update "model_version"
		set "status" = 'active', "reason" = $2, "status_changed_at" = now()
		where "version_id" = $1
		`,
		versionId, reason,
	); err != nil {
		return xe.Wrap(err)
	}

	if _, err := tx.Exec(
		ctx,
		`update "active_model" set "version_id" = $1, "updated_at" = now() where "singleton"`,
		versionId,
	); err != nil {
		return xe.Wrap(err)
	}

	return xe.WrapWithNote("activating "+versionId, tx.Commit(ctx))
}

func (m *modelPG) Reject(ctx context.Context, versionId string, reason string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(
		ctx,
		`select "status" from "model_version" where "version_id" = $1 for update`,
		versionId,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(versionId)
		}
		return xe.Wrap(err)
	}
	if !domain.ModelStatus(status).CanBeChangedTo(domain.Rejected) {
		return xe.Wrap(pgerr.Conflict{
			Table: "model_version", Identity: versionId,
			Reason: fmt.Sprintf("%s version can not be rejected", status),
			Cause:  domain.ErrVersionNotEligible,
		})
	}

	if _, err := tx.Exec(
		ctx,
		`
		update "model_version"
		set "status" = 'rejected', "reason" = $2, "status_changed_at" = now()
		where "version_id" = $1
		`,
		versionId, reason,
	); err != nil {
		return xe.Wrap(err)
	}

	return xe.Wrap(tx.Commit(ctx))
}

func sameVersion(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func describe(versionId *string) string {
	if versionId == nil {
		return "(none)"
	}
	return *versionId
}
