package domain

import "time"

// OutcomeEvent is a confirmed adverse event of an entity.
//
// Events are immutable. An entity can have many events (e.g. replaced device fails again).
type OutcomeEvent struct {
	EventId    string
	EntityId   int64
	EventTime  time.Time
	RecordedAt time.Time
}

// Qualifies tells whether the event makes a positive label of the reading at ts,
// as observed at now.
//
// The event qualifies when ts < EventTime <= ts + window, and it has happened until now.
func (e OutcomeEvent) Qualifies(ts time.Time, window time.Duration, now time.Time) bool {
	if !ts.Before(e.EventTime) {
		return false
	}
	if e.EventTime.After(ts.Add(window)) {
		return false
	}
	return !e.EventTime.After(now)
}

// NormalizeOutcomes sets time zones of events to UTC, in place.
func NormalizeOutcomes(events []OutcomeEvent) []OutcomeEvent {
	for i := range events {
		events[i].EventTime = events[i].EventTime.UTC()
		events[i].RecordedAt = events[i].RecordedAt.UTC()
	}
	return events
}
