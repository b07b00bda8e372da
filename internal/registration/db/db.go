package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"campus-events/internal/apperr"
	"campus-events/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// lockEvent loads the event inside tx, taking a row lock on Postgres so
// concurrent admissions and promotions for the same event serialize. SQLite
// (tests) serializes writers on its own and has no FOR UPDATE.
func (d *DB) lockEvent(ctx context.Context, tx bun.Tx, eventID string) (*models.Event, error) {
	var ev models.Event
	q := tx.NewSelect().Model(&ev).Where("id = ?", eventID)
	if d.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return &ev, nil
}

// isUniqueViolation recognizes a unique-constraint failure from either driver:
// Postgres error class 23505 in production, SQLite's message in tests.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var ev models.Event
	err := d.Bun.NewSelect().
		Model(&ev).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) GetRegistrationByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// AdmitRegistration runs the capacity-gated admission as one transaction:
// lock the event, count REGISTERED rows, land the new row as REGISTERED or
// WAITLIST, then mint its QR code when the policy asked for one. A losing
// racer lands on the waitlist, never errors out. The mint callback runs after
// the insert so the registration ID is stable; its failure rolls the whole
// admission back.
func (d *DB) AdmitRegistration(ctx context.Context, reg *models.Registration, mint func(*models.Registration) (string, error)) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		ev, err := d.lockEvent(ctx, tx, reg.EventID)
		if err != nil {
			return fmt.Errorf("lock event %s: %w", reg.EventID, err)
		}

		registered, err := tx.NewSelect().
			Model((*models.Registration)(nil)).
			Where("event_id = ? AND status = ?", reg.EventID, models.Registered).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count registered: %w", err)
		}

		if registered < ev.Capacity {
			reg.Status = models.Registered
		} else {
			reg.Status = models.Waitlist
		}

		if _, err := tx.NewInsert().Model(reg).Exec(ctx); err != nil {
			// Concurrent duplicates slip past the service's pre-check; the
			// unique (user_id, event_id) constraint catches them here.
			if isUniqueViolation(err) {
				return apperr.Conflict("already registered for this event")
			}
			return fmt.Errorf("insert registration: %w", err)
		}

		if mint != nil {
			qr, err := mint(reg)
			if err != nil {
				return fmt.Errorf("mint registration QR: %w", err)
			}
			reg.QRCode = qr
			if _, err := tx.NewUpdate().
				Model(reg).
				Column("qr_code").
				Where("id = ?", reg.ID).
				Exec(ctx); err != nil {
				return fmt.Errorf("store registration QR: %w", err)
			}
		}
		return nil
	})
}

// CancelAndPromote deletes the registration and promotes the oldest waitlisted
// row for the same event, both inside one transaction. Exactly one promotion
// per cancellation, FIFO by creation time.
func (d *DB) CancelAndPromote(ctx context.Context, reg *models.Registration) (*models.Registration, error) {
	var promoted *models.Registration

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := d.lockEvent(ctx, tx, reg.EventID); err != nil {
			return fmt.Errorf("lock event %s: %w", reg.EventID, err)
		}

		res, err := tx.NewDelete().
			Model((*models.Registration)(nil)).
			Where("id = ?", reg.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}

		// Only a REGISTERED row frees a slot worth promoting into.
		if reg.Status != models.Registered {
			return nil
		}

		var next models.Registration
		err = tx.NewSelect().
			Model(&next).
			Where("event_id = ? AND status = ?", reg.EventID, models.Waitlist).
			OrderExpr("created_at ASC, id ASC").
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find waitlist head: %w", err)
		}

		next.Status = models.Registered
		if _, err := tx.NewUpdate().
			Model(&next).
			Column("status").
			Where("id = ?", next.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("promote registration: %w", err)
		}
		promoted = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// SetCheckIn persists the check-in sub-state flip (both directions).
func (d *DB) SetCheckIn(ctx context.Context, reg *models.Registration) error {
	_, err := d.Bun.NewUpdate().
		Model(reg).
		Column("checked_in", "checked_in_at").
		Where("id = ?", reg.ID).
		Exec(ctx)
	return err
}

// UpdateQRCode repairs a row whose QR mint was lost after commit.
func (d *DB) UpdateQRCode(ctx context.Context, registrationID, qrCode string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("qr_code = ?", qrCode).
		Where("id = ?", registrationID).
		Exec(ctx)
	return err
}

// ListByEvent returns an event's registrations in waitlist order.
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) CountByStatus(ctx context.Context, eventID string, status models.RegistrationStatus) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ? AND status = ?", eventID, status).
		Count(ctx)
}

// ---------------- check-in mode backfill ----------------

func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := d.Bun.NewSelect().Model(&events).Scan(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

// RepairCheckInMode persists a recomputed mode and, when the event moved to
// StudentsScan, clears per-registration QR codes that no longer have meaning.
func (d *DB) RepairCheckInMode(ctx context.Context, eventID string, mode models.CheckInMode) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("check_in_mode = ?", mode).
			Where("id = ?", eventID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update check-in mode: %w", err)
		}

		if mode == models.StudentsScan {
			if _, err := tx.NewUpdate().
				Model((*models.Registration)(nil)).
				Set("qr_code = NULL").
				Where("event_id = ?", eventID).
				Exec(ctx); err != nil {
				return fmt.Errorf("clear registration QR codes: %w", err)
			}
		}
		return nil
	})
}

// CreateEvent and CreateRegistration exist for fixtures and tooling, not for
// the request path; admission always goes through AdmitRegistration.
func (d *DB) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := d.Bun.NewInsert().Model(ev).Exec(ctx)
	return err
}

func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := d.Bun.NewInsert().Model(reg).Exec(ctx)
	return err
}
