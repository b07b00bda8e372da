package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"campus-events/internal/apperr"
	"campus-events/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := d.Bun.NewSelect().
		Model(&ev).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (d *DB) GetVerification(ctx context.Context, id string) (*models.PaymentVerification, error) {
	var v models.PaymentVerification
	err := d.Bun.NewSelect().
		Model(&v).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVerificationByTicket leans on the unique ticket_id constraint: at most
// one live verification exists per ticket.
func (d *DB) GetVerificationByTicket(ctx context.Context, ticketID string) (*models.PaymentVerification, error) {
	var v models.PaymentVerification
	err := d.Bun.NewSelect().
		Model(&v).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *DB) CreateVerification(ctx context.Context, v *models.PaymentVerification) error {
	_, err := d.Bun.NewInsert().Model(v).Exec(ctx)
	return err
}

func (d *DB) UpdateVerification(ctx context.Context, v *models.PaymentVerification) error {
	_, err := d.Bun.NewUpdate().
		Model(v).
		Column("receipt_image_url", "status", "organizer_notes", "verified_at", "updated_at").
		Where("id = ?", v.ID).
		Exec(ctx)
	return err
}

// ApproveAndIssue flips the verification to APPROVED and the ticket to PAID
// with its minted QR in one transaction, locking the ticket row so two
// organizers cannot race the same decision.
func (d *DB) ApproveAndIssue(ctx context.Context, v *models.PaymentVerification, ticket *models.Ticket) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var locked models.Ticket
		q := tx.NewSelect().Model(&locked).Where("id = ?", ticket.ID)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return fmt.Errorf("lock ticket %s: %w", ticket.ID, err)
		}
		if locked.Status != models.TicketPending {
			return apperr.InvalidState("ticket is no longer pending")
		}

		if _, err := tx.NewUpdate().
			Model(v).
			Column("status", "verified_at", "updated_at").
			Where("id = ?", v.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update verification: %w", err)
		}

		if _, err := tx.NewUpdate().
			Model(ticket).
			Column("status", "qr_code").
			Where("id = ?", ticket.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		return nil
	})
}

// SetTicketCheckIn persists a ticket scan.
func (d *DB) SetTicketCheckIn(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewUpdate().
		Model(ticket).
		Column("checked_in", "checked_in_at").
		Where("id = ?", ticket.ID).
		Exec(ctx)
	return err
}

// CreateTicket exists for fixtures and the ticket purchase surface.
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.IssuedAt.IsZero() {
		ticket.IssuedAt = time.Now()
	}
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}
