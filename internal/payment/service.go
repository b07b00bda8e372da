// Package payment owns the ticket and receipt-verification lifecycle for paid
// and external events: receipt upload, organizer decision, QR issuance.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campus-events/internal/apperr"
	"campus-events/internal/auth"
	"campus-events/internal/kafka"
	"campus-events/internal/logger"
	"campus-events/internal/models"
	"campus-events/internal/qrtoken"
)

type Store interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetVerification(ctx context.Context, id string) (*models.PaymentVerification, error)
	GetVerificationByTicket(ctx context.Context, ticketID string) (*models.PaymentVerification, error)
	CreateVerification(ctx context.Context, v *models.PaymentVerification) error
	UpdateVerification(ctx context.Context, v *models.PaymentVerification) error
	ApproveAndIssue(ctx context.Context, v *models.PaymentVerification, ticket *models.Ticket) error
	SetTicketCheckIn(ctx context.Context, ticket *models.Ticket) error
}

// Publisher mirrors the registration ledger's gamification boundary for
// ticket scans.
type Publisher interface {
	PublishCheckIn(event kafka.CheckInEvent) error
}

type Service struct {
	Store     Store
	Codec     *qrtoken.Codec
	Publisher Publisher
	Logger    *logger.Logger

	QRMaxAge time.Duration
	Now      func() time.Time
}

func NewService(store Store, codec *qrtoken.Codec, pub Publisher, log *logger.Logger, qrMaxAge time.Duration) *Service {
	return &Service{
		Store:     store,
		Codec:     codec,
		Publisher: pub,
		Logger:    log,
		QRMaxAge:  qrMaxAge,
		Now:       time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) warn(category, message string) {
	if s.Logger != nil {
		s.Logger.Warn(category, message)
	}
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// UploadReceipt attaches a bank-transfer receipt to a pending ticket. A prior
// attempt's verification row is overwritten in place: same ID, fresh receipt,
// status back to PENDING, organizer notes cleared. This is what lets a
// student retry after a rejection.
func (s *Service) UploadReceipt(ctx context.Context, ticketID, receiptImageURL string, actor auth.Actor) (*models.PaymentVerification, error) {
	if receiptImageURL == "" {
		return nil, apperr.Validation("receipt image URL is required")
	}

	ticket, err := s.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket")
	}
	if actor.ID != "" && ticket.UserID != actor.ID {
		return nil, apperr.Forbidden("only the ticket holder can upload a receipt")
	}
	if ticket.Status != models.TicketPending {
		return nil, apperr.InvalidState("receipt can only be attached to a pending ticket")
	}

	now := s.now()
	existing, err := s.Store.GetVerificationByTicket(ctx, ticketID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load verification for ticket %s: %w", ticketID, err)
	}

	if existing != nil {
		existing.ReceiptImageURL = receiptImageURL
		existing.Status = models.VerificationPending
		existing.OrganizerNotes = ""
		existing.VerifiedAt = nil
		existing.UpdatedAt = now
		if err := s.Store.UpdateVerification(ctx, existing); err != nil {
			return nil, fmt.Errorf("update verification: %w", err)
		}
		return existing, nil
	}

	v := &models.PaymentVerification{
		ID:              uuid.NewString(),
		TicketID:        ticketID,
		ReceiptImageURL: receiptImageURL,
		Status:          models.VerificationPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.CreateVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	return v, nil
}

// VerifyPayment records the organizer's decision. Approval mints the ticket
// QR and flips the ticket to PAID atomically; rejection requires notes and
// leaves the ticket pending for another upload.
func (s *Service) VerifyPayment(ctx context.Context, verificationID string, actor auth.Actor, decision models.VerificationStatus, notes string) (*models.Ticket, error) {
	if decision != models.VerificationApproved && decision != models.VerificationRejected {
		return nil, apperr.Validation("decision must be APPROVED or REJECTED")
	}

	v, err := s.Store.GetVerification(ctx, verificationID)
	if err != nil {
		return nil, notFoundOr(err, "payment verification")
	}
	if v.Status != models.VerificationPending {
		return nil, apperr.InvalidState("verification has already been decided")
	}

	ticket, err := s.Store.GetTicket(ctx, v.TicketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket")
	}
	ev, err := s.Store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	if !auth.CanVerifyPayment(actor, ev) {
		return nil, apperr.Forbidden("only the event organizer or partner account can verify payments")
	}

	now := s.now()
	if decision == models.VerificationRejected {
		if notes == "" {
			return nil, apperr.Validation("rejection requires organizer notes")
		}
		v.Status = models.VerificationRejected
		v.OrganizerNotes = notes
		v.VerifiedAt = &now
		v.UpdatedAt = now
		if err := s.Store.UpdateVerification(ctx, v); err != nil {
			return nil, fmt.Errorf("record rejection: %w", err)
		}
		s.warn("PAYMENT", fmt.Sprintf("receipt for ticket %s rejected: %s", ticket.ID, notes))
		return ticket, nil
	}

	token, err := s.Codec.Mint(qrtoken.Claims{
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		UserID:    ticket.UserID,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	v.Status = models.VerificationApproved
	v.VerifiedAt = &now
	v.UpdatedAt = now
	ticket.Status = models.TicketPaid
	ticket.QRCode = token.Image

	if err := s.Store.ApproveAndIssue(ctx, v, ticket); err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("approve verification: %w", err)
	}
	return ticket, nil
}

// CheckInByQR admits a paid ticket holder from a scanned ticket payload. The
// codec only proves the payload is ours; being PAID and unused is decided
// here.
func (s *Service) CheckInByQR(ctx context.Context, payload string, actor auth.Actor) (*models.Ticket, error) {
	claims, err := s.Codec.Verify(payload)
	if err != nil {
		return nil, err
	}
	if claims.TicketID == "" {
		return nil, apperr.Validation("QR payload does not identify a ticket")
	}
	if s.QRMaxAge > 0 && !claims.IssuedWithin(s.QRMaxAge, s.now()) {
		return nil, apperr.InvalidState("QR code has expired")
	}

	ticket, err := s.Store.GetTicket(ctx, claims.TicketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket")
	}
	ev, err := s.Store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	if !auth.CanManageCheckIn(actor, ev) {
		return nil, apperr.Forbidden("not allowed to manage check-in for this event")
	}
	if ticket.Status != models.TicketPaid {
		return nil, apperr.InvalidState("ticket is not paid")
	}
	if ticket.CheckedIn {
		return nil, apperr.InvalidState("ticket has already been used")
	}

	now := s.now()
	ticket.CheckedIn = true
	ticket.CheckedInAt = &now
	if err := s.Store.SetTicketCheckIn(ctx, ticket); err != nil {
		return nil, fmt.Errorf("persist ticket check-in: %w", err)
	}

	if s.Publisher != nil {
		err := s.Publisher.PublishCheckIn(kafka.CheckInEvent{
			TicketID:    ticket.ID,
			EventID:     ticket.EventID,
			UserID:      ticket.UserID,
			CheckedInAt: now,
		})
		if err != nil {
			s.warn("KAFKA", fmt.Sprintf("publish ticket check-in for %s: %v", ticket.ID, err))
		}
	}
	return ticket, nil
}
