package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CheckInMode string

const (
	// OrganizerScans: staff scan each attendee's personal QR code.
	OrganizerScans CheckInMode = "ORGANIZER_SCANS"
	// StudentsScan: the event displays one static QR code and attendees scan it.
	StudentsScan CheckInMode = "STUDENTS_SCAN"
)

type EventStatus string

const (
	EventPendingModeration EventStatus = "PENDING_MODERATION"
	EventUpcoming          EventStatus = "UPCOMING"
	EventOngoing           EventStatus = "ONGOING"
	EventCompleted         EventStatus = "COMPLETED"
	EventCancelled         EventStatus = "CANCELLED"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string      `bun:"id,pk" json:"id"`
	Name            string      `bun:"name,notnull" json:"name"`
	Description     string      `bun:"description" json:"description,omitempty"`
	Capacity        int         `bun:"capacity,notnull" json:"capacity"`
	IsPaid          bool        `bun:"is_paid,notnull" json:"is_paid"`
	IsExternalEvent bool        `bun:"is_external_event,notnull" json:"is_external_event"`
	CheckInMode     CheckInMode `bun:"check_in_mode,notnull" json:"check_in_mode"`
	Status          EventStatus `bun:"status,notnull" json:"status"`
	Price           float64     `bun:"price" json:"price"`
	StartDate       time.Time   `bun:"start_date,notnull" json:"start_date"`
	EndDate         time.Time   `bun:"end_date,notnull" json:"end_date"`
	CreatorID       string      `bun:"creator_id,notnull" json:"creator_id"`
	// ExternalPartnerID is the account-holding user of the partner hosting the
	// event. Empty for internally organized events.
	ExternalPartnerID string    `bun:"external_partner_id,nullzero" json:"external_partner_id,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`
}

// EventSummary is the projection nested inside registration and ticket responses.
type EventSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	CheckInMode CheckInMode `json:"check_in_mode"`
	IsPaid      bool        `json:"is_paid"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
}

func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:          e.ID,
		Name:        e.Name,
		CheckInMode: e.CheckInMode,
		IsPaid:      e.IsPaid,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
	}
}
