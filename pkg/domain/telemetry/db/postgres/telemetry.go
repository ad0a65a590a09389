package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/ripen/pkg/conn/db/postgres/pool"
	"github.com/opst/ripen/pkg/conn/db/postgres/scanner"
	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/telemetry/db"
	xe "github.com/opst/ripen/pkg/errors"
)

type telemetryPG struct {
	pool kpool.Pool
}

var _ kdb.TelemetryInterface = &telemetryPG{}

func New(pool kpool.Pool) kdb.TelemetryInterface {
	return &telemetryPG{pool: pool}
}

func (m *telemetryPG) Existing(ctx context.Context, keys []domain.ReadingKey) (map[domain.ReadingKey]struct{}, error) {
	found := map[domain.ReadingKey]struct{}{}
	if len(keys) == 0 {
		return found, nil
	}

	entityIds := make([]int64, len(keys))
	timestamps := make([]time.Time, len(keys))
	for i, k := range keys {
		entityIds[i] = k.EntityId
		timestamps[i] = k.Time()
	}

	rows, err := m.pool.Query(
		ctx,
		`
		select "r"."entity_id", "r"."timestamp"
		from "reading" as "r"
		inner join unnest($1::bigint[], $2::timestamptz[]) as "k"("entity_id", "timestamp")
			on "r"."entity_id" = "k"."entity_id" and "r"."timestamp" = "k"."timestamp"
		`,
		entityIds, timestamps,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityId int64
		var ts time.Time
		if err := rows.Scan(&entityId, &ts); err != nil {
			return nil, xe.Wrap(err)
		}
		found[domain.ReadingKey{EntityId: entityId, Unix: ts.Unix()}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return found, nil
}

// column-wise expression of readings, to be passed to unnest.
type readingColumns struct {
	entityId    []int64
	timestamp   []time.Time
	impedance   []float64
	threshold   []float64
	rwave       []float64
	battery     []float64
	derived     [8][]*float64
	labelState  []string
	labelValue  []*int16
	resolvedAt  []*time.Time
	labelSource []*string
}

func columns(readings []domain.Reading) readingColumns {
	n := len(readings)
	c := readingColumns{
		entityId:    make([]int64, n),
		timestamp:   make([]time.Time, n),
		impedance:   make([]float64, n),
		threshold:   make([]float64, n),
		rwave:       make([]float64, n),
		battery:     make([]float64, n),
		labelState:  make([]string, n),
		labelValue:  make([]*int16, n),
		resolvedAt:  make([]*time.Time, n),
		labelSource: make([]*string, n),
	}
	for i := range c.derived {
		c.derived[i] = make([]*float64, n)
	}

	for i, r := range readings {
		c.entityId[i] = r.EntityId
		c.timestamp[i] = r.Key().Time()
		c.impedance[i] = r.Measurements.LeadImpedanceOhms
		c.threshold[i] = r.Measurements.CaptureThresholdV
		c.rwave[i] = r.Measurements.RWaveSensingMv
		c.battery[i] = r.Measurements.BatteryVoltageV

		d := r.Derived
		for j, v := range []*float64{
			d.LeadImpedanceOhmsRollingMean3d, d.LeadImpedanceOhmsRollingMean7d,
			d.CaptureThresholdVRollingMean3d, d.CaptureThresholdVRollingMean7d,
			d.LeadImpedanceOhmsDeltaPerDay3d, d.LeadImpedanceOhmsDeltaPerDay7d,
			d.CaptureThresholdVDeltaPerDay3d, d.CaptureThresholdVDeltaPerDay7d,
		} {
			c.derived[j][i] = v
		}

		if r.Label.Resolved() {
			value := int16(r.Label.Value)
			resolvedAt := r.Label.ResolvedAt.UTC()
			source := r.Label.Source.String()
			c.labelState[i] = domain.LabelResolved.String()
			c.labelValue[i] = &value
			c.resolvedAt[i] = &resolvedAt
			c.labelSource[i] = &source
		} else {
			c.labelState[i] = domain.LabelUnresolved.String()
		}
	}
	return c
}

func (m *telemetryPG) Insert(ctx context.Context, readings []domain.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	c := columns(readings)

	ctag, err := m.pool.Exec(
		ctx,
		`
		insert into "reading" (
			"entity_id", "timestamp",
			"lead_impedance_ohms", "capture_threshold_v", "r_wave_sensing_mv", "battery_voltage_v",
			"lead_impedance_ohms_rolling_mean_3d", "lead_impedance_ohms_rolling_mean_7d",
			"capture_threshold_v_rolling_mean_3d", "capture_threshold_v_rolling_mean_7d",
			"lead_impedance_ohms_delta_per_day_3d", "lead_impedance_ohms_delta_per_day_7d",
			"capture_threshold_v_delta_per_day_3d", "capture_threshold_v_delta_per_day_7d",
			"label_state", "label_value", "resolved_at", "label_source"
		)
		select
			"entity_id", "timestamp",
			"impedance", "threshold", "rwave", "battery",
			"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8",
			"label_state"::"label_state", "label_value", "resolved_at", "label_source"::"label_source"
		from unnest(
			$1::bigint[], $2::timestamptz[],
			$3::float8[], $4::float8[], $5::float8[], $6::float8[],
			$7::float8[], $8::float8[], $9::float8[], $10::float8[],
			$11::float8[], $12::float8[], $13::float8[], $14::float8[],
			$15::varchar[], $16::smallint[], $17::timestamptz[], $18::varchar[]
		) as "u"(
			"entity_id", "timestamp",
			"impedance", "threshold", "rwave", "battery",
			"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8",
			"label_state", "label_value", "resolved_at", "label_source"
		)
		on conflict ("entity_id", "timestamp") do nothing
		`,
		c.entityId, c.timestamp,
		c.impedance, c.threshold, c.rwave, c.battery,
		c.derived[0], c.derived[1], c.derived[2], c.derived[3],
		c.derived[4], c.derived[5], c.derived[6], c.derived[7],
		c.labelState, c.labelValue, c.resolvedAt, c.labelSource,
	)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(ctag.RowsAffected()), nil
}

const readingColumnList = `
	"entity_id", "timestamp",
	"lead_impedance_ohms", "capture_threshold_v", "r_wave_sensing_mv", "battery_voltage_v",
	"lead_impedance_ohms_rolling_mean_3d", "lead_impedance_ohms_rolling_mean_7d",
	"capture_threshold_v_rolling_mean_3d", "capture_threshold_v_rolling_mean_7d",
	"lead_impedance_ohms_delta_per_day_3d", "lead_impedance_ohms_delta_per_day_7d",
	"capture_threshold_v_delta_per_day_3d", "capture_threshold_v_delta_per_day_7d",
	"label_state", "label_value", "resolved_at", "label_source"
`

func scanReadings(rows pgx.Rows) ([]domain.Reading, error) {
	defer rows.Close()

	readings := []domain.Reading{}
	for rows.Next() {
		var r domain.Reading
		var ts time.Time
		var labelState string
		var labelValue *int16
		var resolvedAt *time.Time
		var labelSource *string
		d := &r.Derived
		if err := rows.Scan(
			&r.EntityId, &ts,
			&r.Measurements.LeadImpedanceOhms, &r.Measurements.CaptureThresholdV,
			&r.Measurements.RWaveSensingMv, &r.Measurements.BatteryVoltageV,
			&d.LeadImpedanceOhmsRollingMean3d, &d.LeadImpedanceOhmsRollingMean7d,
			&d.CaptureThresholdVRollingMean3d, &d.CaptureThresholdVRollingMean7d,
			&d.LeadImpedanceOhmsDeltaPerDay3d, &d.LeadImpedanceOhmsDeltaPerDay7d,
			&d.CaptureThresholdVDeltaPerDay3d, &d.CaptureThresholdVDeltaPerDay7d,
			&labelState, &labelValue, &resolvedAt, &labelSource,
		); err != nil {
			return nil, xe.Wrap(err)
		}
		r.Timestamp = ts.UTC()
		r.Label = domain.Unresolved()
		if domain.LabelState(labelState) == domain.LabelResolved &&
			labelValue != nil && resolvedAt != nil && labelSource != nil {
			r.Label = domain.LabelStatus{
				State:      domain.LabelResolved,
				Value:      int(*labelValue),
				ResolvedAt: resolvedAt.UTC(),
				Source:     domain.LabelSource(*labelSource),
			}
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return readings, nil
}

func (m *telemetryPG) PickUnresolved(
	ctx context.Context,
	cursor domain.EntityCursor,
	now time.Time,
	window time.Duration,
	resolve func(domain.EntityTimeline) ([]domain.Resolution, error),
) (domain.EntityCursor, bool, error) {
	head := int64(-1)
	if cursor.Started {
		head = cursor.Head
	}
	windowSec := window.Seconds()

	var entityId int64
	if err := m.pool.QueryRow(
		ctx,
		`
		select "r"."entity_id"
		from "reading" as "r"
		where
			"r"."label_state" = 'unresolved'
			and (
				"r"."timestamp" + make_interval(secs => $2) <= $1
				or exists (
					select 1 from "outcome_event" as "e"
					where
						"e"."entity_id" = "r"."entity_id"
						and "r"."timestamp" < "e"."event_time"
						and "e"."event_time" <= "r"."timestamp" + make_interval(secs => $2)
						and "e"."event_time" <= $1
				)
			)
		order by "r"."entity_id" <= $3, "r"."entity_id"
		limit 1
		`,
		now, windowSec, head,
	).Scan(&entityId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cursor, false, nil
		}
		return cursor, false, xe.Wrap(err)
	}

	// cursor is moved!
	cursor = domain.EntityCursor{Head: entityId, Started: true}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return cursor, true, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var locked bool
	if err := tx.QueryRow(
		ctx,
		`select pg_try_advisory_xact_lock(hashtextextended('ripen/resolve/' || $1::text, 0))`,
		entityId,
	).Scan(&locked); err != nil {
		return cursor, true, xe.Wrap(err)
	}
	if !locked {
		return cursor, true, fmt.Errorf("%w: entity %d is being resolved", domain.ErrLocked, entityId)
	}

	timeline := domain.EntityTimeline{EntityId: entityId}
	{
		rows, err := tx.Query(
			ctx,
			`select `+readingColumnList+`
			from "reading"
			where "entity_id" = $1 and "label_state" = 'unresolved'
			order by "timestamp"`,
			entityId,
		)
		if err != nil {
			return cursor, true, xe.Wrap(err)
		}
		readings, err := scanReadings(rows)
		if err != nil {
			return cursor, true, err
		}
		timeline.Unresolved = readings
	}
	{
		events, err := scanner.New[domain.OutcomeEvent]().QueryAll(
			ctx, tx,
			`select "event_id"::text, "entity_id", "event_time", "recorded_at"
			from "outcome_event"
			where "entity_id" = $1
			order by "event_time", "event_id"`,
			entityId,
		)
		if err != nil {
			return cursor, true, xe.Wrap(err)
		}
		timeline.Events = domain.NormalizeOutcomes(events)
	}

	resolutions, err := resolve(timeline)
	if err != nil {
		return cursor, true, err
	}

	if err := writeResolutions(ctx, tx, resolutions); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.SerializationFailure {
			return cursor, true, fmt.Errorf("%w: entity %d is resolved concurrently", domain.ErrLocked, entityId)
		}
		return cursor, true, err
	}

	if err := tx.Commit(ctx); err != nil {
		return cursor, true, xe.Wrap(err)
	}
	return cursor, true, nil
}

func writeResolutions(ctx context.Context, tx kpool.Tx, resolutions []domain.Resolution) error {
	if len(resolutions) == 0 {
		return nil
	}

	n := len(resolutions)
	entityIds := make([]int64, n)
	timestamps := make([]time.Time, n)
	values := make([]int16, n)
	resolvedAt := make([]time.Time, n)
	sources := make([]string, n)
	for i, r := range resolutions {
		entityIds[i] = r.Key.EntityId
		timestamps[i] = r.Key.Time()
		values[i] = int16(r.Label.Value)
		resolvedAt[i] = r.Label.ResolvedAt.UTC()
		sources[i] = r.Label.Source.String()
	}

	ctag, err := tx.Exec(
		ctx,
		`
		update "reading" as "r" set
			"label_state" = 'resolved',
			"label_value" = "u"."value",
			"resolved_at" = "u"."resolved_at",
			"label_source" = "u"."source"::"label_source"
		from unnest(
			$1::bigint[], $2::timestamptz[], $3::smallint[], $4::timestamptz[], $5::varchar[]
		) as "u"("entity_id", "timestamp", "value", "resolved_at", "source")
		where
			"r"."entity_id" = "u"."entity_id"
			and "r"."timestamp" = "u"."timestamp"
			and "r"."label_state" = 'unresolved'
		`,
		entityIds, timestamps, values, resolvedAt, sources,
	)
	if err != nil {
		return xe.Wrap(err)
	}
	if int(ctag.RowsAffected()) != n {
		return xe.Wrap(fmt.Errorf(
			"%w: %d of %d readings are not unresolved",
			domain.ErrLabelAlreadyResolved, n-int(ctag.RowsAffected()), n,
		))
	}
	return nil
}

func (m *telemetryPG) Matured(ctx context.Context, asOf time.Time) ([]domain.Reading, error) {
	rows, err := m.pool.Query(
		ctx,
		`select `+readingColumnList+`
		from "reading"
		where "label_state" = 'resolved' and "resolved_at" <= $1
		order by "entity_id", "timestamp"`,
		asOf,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return scanReadings(rows)
}

func (m *telemetryPG) Counts(ctx context.Context) (domain.TelemetryCounts, error) {
	var c domain.TelemetryCounts
	if err := m.pool.QueryRow(
		ctx,
		`
		select
			count(*),
			count(*) filter (where "label_state" = 'unresolved'),
			count(*) filter (where "label_state" = 'resolved'),
			count(*) filter (where "label_value" = 1)
		from "reading"
		`,
	).Scan(&c.Total, &c.Unresolved, &c.Resolved, &c.Positive); err != nil {
		return c, xe.Wrap(err)
	}
	return c, nil
}
