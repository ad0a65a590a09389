package postgres

import (
	"context"
	"time"

	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	"github.com/opst/ripen/pkg/conn/db/postgres/scanner"
	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/outcome/db"
	xe "github.com/opst/ripen/pkg/errors"
)

type outcomePG struct {
	pool kpool.Pool
}

var _ kdb.OutcomeInterface = &outcomePG{}

func New(pool kpool.Pool) kdb.OutcomeInterface {
	return &outcomePG{pool: pool}
}

func (m *outcomePG) Record(ctx context.Context, events []domain.OutcomeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	n := len(events)
	eventIds := make([]string, n)
	entityIds := make([]int64, n)
	eventTimes := make([]time.Time, n)
	for i, e := range events {
		eventIds[i] = e.EventId
		entityIds[i] = e.EntityId
		eventTimes[i] = e.EventTime.UTC()
	}

	ctag, err := m.pool.Exec(
		ctx,
		`
		insert into "outcome_event" ("event_id", "entity_id", "event_time")
		select "event_id", "entity_id", "event_time"
		from unnest($1::uuid[], $2::bigint[], $3::timestamptz[])
			as "u"("event_id", "entity_id", "event_time")
		on conflict ("event_id") do nothing
		`,
		eventIds, entityIds, eventTimes,
	)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(ctag.RowsAffected()), nil
}

func (m *outcomePG) Find(ctx context.Context, entityId int64) ([]domain.OutcomeEvent, error) {
	events, err := scanner.New[domain.OutcomeEvent]().QueryAll(
		ctx, m.pool,
		`
		select "event_id"::text, "entity_id", "event_time", "recorded_at"
		from "outcome_event"
		where "entity_id" = $1
		order by "event_time", "event_id"
		`,
		entityId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return domain.NormalizeOutcomes(events), nil
}
