package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	Registered RegistrationStatus = "REGISTERED"
	Waitlist   RegistrationStatus = "WAITLIST"
)

// Registration is one user's spot (or waitlist place) at one event.
// A user holds at most one registration per event; cancellations delete the row.
type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID      string             `bun:"id,pk" json:"id"`
	UserID  string             `bun:"user_id,notnull,unique:user_event" json:"user_id"`
	EventID string             `bun:"event_id,notnull,unique:user_event" json:"event_id"`
	Status  RegistrationStatus `bun:"status,notnull" json:"status"`

	CheckedIn   bool       `bun:"checked_in,notnull,default:false" json:"checked_in"`
	CheckedInAt *time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`

	// QRCode is the rendered image as a data URL. Empty when the check-in
	// policy does not call for a per-registration code, or when minting is
	// still pending after a partial failure.
	QRCode string `bun:"qr_code,nullzero" json:"qr_code,omitempty"`

	// CreatedAt doubles as the waitlist position: promotion is FIFO on it.
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type RegistrationResponse struct {
	Registration *Registration `json:"registration"`
	Event        EventSummary  `json:"event"`
}
