package models

import (
	"time"

	"github.com/uptrace/bun"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// PaymentVerification is the manual bank-transfer attestation for one ticket.
// At most one row exists per ticket: a re-upload after rejection overwrites the
// receipt and resets the status instead of creating a new attempt.
type PaymentVerification struct {
	bun.BaseModel `bun:"table:payment_verifications"`

	ID       string `bun:"id,pk" json:"id"`
	TicketID string `bun:"ticket_id,notnull,unique" json:"ticket_id"`

	ReceiptImageURL string             `bun:"receipt_image_url,notnull" json:"receipt_image_url"`
	Status          VerificationStatus `bun:"status,notnull" json:"status"`

	// OrganizerNotes is required on rejection, cleared on re-upload.
	OrganizerNotes string     `bun:"organizer_notes,nullzero" json:"organizer_notes,omitempty"`
	VerifiedAt     *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
