// Package outcomes is payload of outcome endpoints.
package outcomes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opst/ripen/pkg/domain"
)

// Event is a confirmed adverse event of an entity.
//
// EventId (UUID) is optional. When it is omitted, an id is derived from the entity and the event time,
// so reporting the same event again does not make a new one.
type Event struct {
	EventId   string `json:"event_id,omitempty"`
	EntityId  *int64 `json:"entity_id,omitempty"`
	PatientId *int64 `json:"patient_id,omitempty"`

	// Unix seconds
	EventTime *int64 `json:"event_time"`
}

var eventNamespace = uuid.MustParse("6f1d7c2a-5e0b-4a43-9b57-2f0c2c7c1e45")

func (e Event) Domain(recordedAt time.Time) (domain.OutcomeEvent, []string) {
	reasons := []string{}

	var entityId int64
	switch {
	case e.EntityId != nil && e.PatientId != nil && *e.EntityId != *e.PatientId:
		reasons = append(reasons, "entity_id and patient_id disagree")
	case e.EntityId != nil:
		entityId = *e.EntityId
	case e.PatientId != nil:
		entityId = *e.PatientId
	default:
		reasons = append(reasons, "entity_id (or patient_id) is required")
	}
	if entityId < 0 {
		reasons = append(reasons, "entity id should be non-negative")
	}

	var eventTime time.Time
	if e.EventTime == nil {
		reasons = append(reasons, "event_time is required")
	} else {
		eventTime = time.Unix(*e.EventTime, 0).UTC()
	}
	eventId := e.EventId
	if eventId != "" {
		if id, err := uuid.Parse(eventId); err != nil {
			reasons = append(reasons, "event_id should be a UUID")
		} else {
			eventId = id.String()
		}
	}
	if len(reasons) != 0 {
		return domain.OutcomeEvent{}, reasons
	}

	if eventId == "" {
		eventId = uuid.NewSHA1(
			eventNamespace, []byte(fmt.Sprintf("%d@%d", entityId, eventTime.Unix())),
		).String()
	}
	return domain.OutcomeEvent{
		EventId:    eventId,
		EntityId:   entityId,
		EventTime:  eventTime,
		RecordedAt: recordedAt.UTC(),
	}, nil
}

// AsDomain converts events.
//
// If any event is malformed, error is *domain.SchemaViolationError reporting all of them.
func AsDomain(events []Event, recordedAt time.Time) ([]domain.OutcomeEvent, error) {
	ret := make([]domain.OutcomeEvent, 0, len(events))
	violations := []domain.Violation{}
	for i, e := range events {
		ev, reasons := e.Domain(recordedAt)
		for _, r := range reasons {
			violations = append(violations, domain.Violation{Index: i, Reason: r})
		}
		ret = append(ret, ev)
	}
	if len(violations) != 0 {
		return nil, &domain.SchemaViolationError{Violations: violations}
	}
	return ret, nil
}

type RecordResult struct {
	Received int `json:"received_count"`
	Recorded int `json:"recorded_count"`
}
