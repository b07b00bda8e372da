package kafka

import "time"

// CheckInEvent is published when an attendee is checked in. The gamification
// collaborator consumes it to award attendance points; the ledger never waits
// on that.
type CheckInEvent struct {
	RegistrationID string    `json:"registration_id,omitempty"`
	TicketID       string    `json:"ticket_id,omitempty"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	CheckedInAt    time.Time `json:"checked_in_at"`
}

// RegistrationEvent announces registration lifecycle transitions.
type RegistrationEvent struct {
	Type           string    `json:"type"` // created | cancelled | promoted
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}
