// Package registration owns the registration lifecycle: capacity-gated
// admission, waitlist promotion, and check-in.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campus-events/internal/apperr"
	"campus-events/internal/auth"
	"campus-events/internal/checkin"
	"campus-events/internal/kafka"
	"campus-events/internal/logger"
	"campus-events/internal/models"
	"campus-events/internal/qrtoken"
)

type Store interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	GetRegistrationByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error)
	AdmitRegistration(ctx context.Context, reg *models.Registration, mint func(*models.Registration) (string, error)) error
	CancelAndPromote(ctx context.Context, reg *models.Registration) (*models.Registration, error)
	SetCheckIn(ctx context.Context, reg *models.Registration) error
	UpdateQRCode(ctx context.Context, registrationID, qrCode string) error
	ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
}

// AdmissionLock is the optional per-event lease that thins out row-lock
// contention. The store's transaction holds the capacity invariant either way.
type AdmissionLock interface {
	AcquireWait(ctx context.Context, eventID, holderID string, wait time.Duration) (bool, error)
	Release(ctx context.Context, eventID, holderID string) error
}

// Publisher is the gamification/lifecycle event boundary. All publishes are
// fire-and-forget from the ledger's point of view.
type Publisher interface {
	PublishCheckIn(event kafka.CheckInEvent) error
	PublishRegistrationCreated(registrationID, eventID, userID, status string) error
	PublishRegistrationCancelled(registrationID, eventID, userID string) error
	PublishRegistrationPromoted(registrationID, eventID, userID string) error
}

type Service struct {
	Store     Store
	Codec     *qrtoken.Codec
	Lock      AdmissionLock
	Publisher Publisher
	Logger    *logger.Logger

	// QRMaxAge is the scan-time freshness window; zero disables the check.
	QRMaxAge time.Duration

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewService(store Store, codec *qrtoken.Codec, lock AdmissionLock, pub Publisher, log *logger.Logger, qrMaxAge time.Duration) *Service {
	return &Service{
		Store:     store,
		Codec:     codec,
		Lock:      lock,
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

// Register admits a user to an event. Capacity overflow lands on the waitlist,
// never as a rejection; duplicates conflict instead of upserting.
func (s *Service) Register(ctx context.Context, eventID, userID string) (*models.RegistrationResponse, error) {
	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}

	now := s.now()
	if ev.Status == models.EventCancelled {
		return nil, apperr.InvalidState("event is cancelled")
	}
	if now.After(ev.EndDate) {
		return nil, apperr.InvalidState("event has already ended")
	}

	if existing, err := s.Store.GetRegistrationByUserAndEvent(ctx, userID, eventID); err == nil && existing != nil {
		return nil, apperr.Conflict("already registered for this event")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check existing registration: %w", err)
	}

	reg := &models.Registration{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
	}

	var mint func(*models.Registration) (string, error)
	if checkin.ShouldGenerateRegistrationQR(ev.CheckInMode, ev.IsPaid) {
		mint = func(r *models.Registration) (string, error) {
			token, err := s.Codec.Mint(qrtoken.Claims{
				RegistrationID: r.ID,
				EventID:        r.EventID,
				UserID:         r.UserID,
				Timestamp:      s.now().UnixMilli(),
			})
			if err != nil {
				return "", err
			}
			return token.Image, nil
		}
	}

	if s.Lock != nil {
		holder := reg.ID
		if ok, err := s.Lock.AcquireWait(ctx, eventID, holder, 2*time.Second); err != nil || !ok {
			// The admission transaction still serializes correctly; the
			// lease only existed to soften row-lock contention.
			s.warn("REGISTRATION", fmt.Sprintf("admission lease unavailable for event %s, relying on row lock", eventID))
		} else {
			defer func() {
				_ = s.Lock.Release(ctx, eventID, holder)
			}()
		}
	}

	if err := s.Store.AdmitRegistration(ctx, reg, mint); err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("admit registration: %w", err)
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishRegistrationCreated(reg.ID, eventID, userID, string(reg.Status)); err != nil {
			s.warn("KAFKA", fmt.Sprintf("publish registration created: %v", err))
		}
	}

	return &models.RegistrationResponse{Registration: reg, Event: ev.Summary()}, nil
}

// Cancel removes the requester's registration and promotes the oldest
// waitlisted user, if any. No cancelling once the event has started.
func (s *Service) Cancel(ctx context.Context, registrationID string, actor auth.Actor) error {
	reg, err := s.Store.GetRegistration(ctx, registrationID)
	if err != nil {
		return notFoundOr(err, "registration")
	}
	if !auth.CanCancelRegistration(actor, reg) {
		return apperr.Forbidden("only the registrant can cancel this registration")
	}

	ev, err := s.Store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return notFoundOr(err, "event")
	}
	if s.now().After(ev.StartDate) {
		return apperr.InvalidState("event has already started")
	}

	promoted, err := s.Store.CancelAndPromote(ctx, reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("registration not found")
		}
		return fmt.Errorf("cancel registration: %w", err)
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishRegistrationCancelled(reg.ID, reg.EventID, reg.UserID); err != nil {
			s.warn("KAFKA", fmt.Sprintf("publish registration cancelled: %v", err))
		}
		if promoted != nil {
			if err := s.Publisher.PublishRegistrationPromoted(promoted.ID, promoted.EventID, promoted.UserID); err != nil {
				s.warn("KAFKA", fmt.Sprintf("publish registration promoted: %v", err))
			}
		}
	}
	return nil
}

// CheckIn marks a registered attendee as present. The gamification publish is
// absorbed on failure: points bookkeeping never rolls back a check-in.
func (s *Service) CheckIn(ctx context.Context, registrationID string, actor auth.Actor) (*models.RegistrationResponse, error) {
	reg, err := s.Store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, notFoundOr(err, "registration")
	}
	ev, err := s.Store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	if !auth.CanManageCheckIn(actor, ev) {
		return nil, apperr.Forbidden("not allowed to manage check-in for this event")
	}

	if reg.Status != models.Registered {
		return nil, apperr.InvalidState("only registered attendees can be checked in")
	}
	if reg.CheckedIn {
		return nil, apperr.InvalidState("registration is already checked in")
	}

	now := s.now()
	reg.CheckedIn = true
	reg.CheckedInAt = &now
	if err := s.Store.SetCheckIn(ctx, reg); err != nil {
		return nil, fmt.Errorf("persist check-in: %w", err)
	}

	if s.Publisher != nil {
		err := s.Publisher.PublishCheckIn(kafka.CheckInEvent{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			UserID:         reg.UserID,
			CheckedInAt:    now,
		})
		if err != nil {
			s.warn("KAFKA", fmt.Sprintf("publish check-in for %s: %v", reg.ID, err))
		}
	}

	return &models.RegistrationResponse{Registration: reg, Event: ev.Summary()}, nil
}

// UndoCheckIn reverses a mistaken scan.
func (s *Service) UndoCheckIn(ctx context.Context, registrationID string, actor auth.Actor) (*models.RegistrationResponse, error) {
	reg, err := s.Store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, notFoundOr(err, "registration")
	}
	ev, err := s.Store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	if !auth.CanManageCheckIn(actor, ev) {
		return nil, apperr.Forbidden("not allowed to manage check-in for this event")
	}
	if !reg.CheckedIn {
		return nil, apperr.InvalidState("registration is not checked in")
	}

	reg.CheckedIn = false
	reg.CheckedInAt = nil
	if err := s.Store.SetCheckIn(ctx, reg); err != nil {
		return nil, fmt.Errorf("persist check-in undo: %w", err)
	}
	return &models.RegistrationResponse{Registration: reg, Event: ev.Summary()}, nil
}

// CheckInByQR verifies a scanned payload and then runs the normal check-in.
// The codec proves authenticity; freshness and registration state are decided
// here, not in the codec.
func (s *Service) CheckInByQR(ctx context.Context, payload string, actor auth.Actor) (*models.RegistrationResponse, error) {
	claims, err := s.Codec.Verify(payload)
	if err != nil {
		return nil, err
	}
	if claims.RegistrationID == "" {
		return nil, apperr.Validation("QR payload does not identify a registration")
	}
	if s.QRMaxAge > 0 && !claims.IssuedWithin(s.QRMaxAge, s.now()) {
		return nil, apperr.InvalidState("QR code has expired")
	}
	return s.CheckIn(ctx, claims.RegistrationID, actor)
}

// RemintQR re-issues the QR code for a row left without one by a partial
// failure. A row that already has a code is returned unchanged.
func (s *Service) RemintQR(ctx context.Context, registrationID string, actor auth.Actor) (*models.Registration, error) {
	reg, err := s.Store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, notFoundOr(err, "registration")
	}
	ev, err := s.Store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	if !auth.CanManageCheckIn(actor, ev) {
		return nil, apperr.Forbidden("not allowed to manage check-in for this event")
	}
	if !checkin.ShouldGenerateRegistrationQR(ev.CheckInMode, ev.IsPaid) {
		return nil, apperr.InvalidState("this event does not use registration QR codes")
	}
	if reg.QRCode != "" {
		return reg, nil
	}

	token, err := s.Codec.Mint(qrtoken.Claims{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Timestamp:      s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Store.UpdateQRCode(ctx, reg.ID, token.Image); err != nil {
		return nil, fmt.Errorf("store reminted QR: %w", err)
	}
	reg.QRCode = token.Image
	return reg, nil
}

// Participants returns an event's registrations in waitlist order for the CSV
// export projection.
func (s *Service) Participants(ctx context.Context, eventID string, actor auth.Actor) ([]models.Registration, error) {
	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(err, "event")
	}
	if !auth.CanManageCheckIn(actor, ev) {
		return nil, apperr.Forbidden("not allowed to view participants for this event")
	}
	regs, err := s.Store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return regs, nil
}
