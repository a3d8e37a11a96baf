package mq

import "time"

// Routing keys on the events exchange.
const (
	RoutingHabitCreated           = "habit.created"
	RoutingHabitUpdated           = "habit.updated"
	RoutingHabitDeleted           = "habit.deleted"
	RoutingHabitCompletionUpdated = "habit.completion.updated"
)

// EventMeta is shared by every habit event.
type EventMeta struct {
	EventID    string    `json:"event_id"`
	HabitID    string    `json:"habit_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type HabitCreatedPayload struct {
	EventMeta
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
}

type HabitUpdatedPayload struct {
	EventMeta
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
	Version   int64  `json:"version"`
}

type HabitDeletedPayload struct {
	EventMeta
}

type HabitCompletionUpdatedPayload struct {
	EventMeta
	Date      string `json:"date"` // YYYY-MM-DD
	Completed bool   `json:"completed"`
	Created   bool   `json:"created"`
	Version   int64  `json:"version"`
}
