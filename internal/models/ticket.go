package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending   TicketStatus = "PENDING"
	TicketPaid      TicketStatus = "PAID"
	TicketCancelled TicketStatus = "CANCELLED"
)

// Ticket is a paid admission for one user at one event. It is created PENDING
// and only becomes PAID through receipt verification, which also mints its QR.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID      string       `bun:"id,pk" json:"id"`
	EventID string       `bun:"event_id,notnull" json:"event_id"`
	UserID  string       `bun:"user_id,notnull" json:"user_id"`
	Price   float64      `bun:"price,notnull" json:"price"`
	Status  TicketStatus `bun:"status,notnull" json:"status"`

	// QRCode is set exactly once, when the payment verification is approved.
	QRCode string `bun:"qr_code,nullzero" json:"qr_code,omitempty"`

	CheckedIn   bool       `bun:"checked_in,notnull,default:false" json:"checked_in"`
	CheckedInAt *time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`

	IssuedAt time.Time `bun:"issued_at,notnull" json:"issued_at"`
}
