package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

// TicketsCollection is created by the app migrations.
const TicketsCollection = "tickets"

type pbTicketRow struct {
	TicketID   string `db:"ticket_id"`
	OrderID    string `db:"order_id"`
	CategoryID string `db:"category_id"`
	Price      string `db:"price"`
	Status     string `db:"status"`
	UsedAt     string `db:"used_at"`
	Created    string `db:"created"`
}

// PocketBaseTicketStore keeps tickets in the app's own SQLite database.
// Status changes go through the single writer connection as one
// conditional UPDATE.
type PocketBaseTicketStore struct {
	app core.App
}

func NewPocketBaseTicketStore(app core.App) *PocketBaseTicketStore {
	return &PocketBaseTicketStore{app: app}
}

func (s *PocketBaseTicketStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var row pbTicketRow
	err := s.app.DB().
		Select("ticket_id", "order_id", "category_id", "price", "status", "used_at", "created").
		From(TicketsCollection).
		Where(dbx.HashExp{"ticket_id": ticketID}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("pocketbase: get ticket: %w", err)
	}
	return row.toTicket()
}

func (s *PocketBaseTicketStore) SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	if err := checkTransition(expected, next); err != nil {
		return false, err
	}

	params := dbx.Params{
		"status":  string(next),
		"updated": types.NowDateTime().String(),
	}
	if usedAt != nil {
		dt, err := types.ParseDateTime(usedAt.UTC())
		if err != nil {
			return false, fmt.Errorf("pocketbase: used_at: %w", err)
		}
		params["used_at"] = dt.String()
	}

	res, err := s.app.NonconcurrentDB().
		Update(TicketsCollection, params, dbx.HashExp{"ticket_id": ticketID, "status": string(expected)}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("pocketbase: set ticket status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pocketbase: set ticket status: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	if _, err := s.FindByTicketID(ctx, ticketID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PocketBaseTicketStore) Create(ctx context.Context, ticket models.Ticket) error {
	if err := checkNewTicket(ticket); err != nil {
		return err
	}

	if _, err := s.FindByTicketID(ctx, ticket.ID); err == nil {
		return status.ErrTicketExists
	} else if !errors.Is(err, status.ErrTicketNotFound) {
		return err
	}

	collection, err := s.app.FindCollectionByNameOrId(TicketsCollection)
	if err != nil {
		return fmt.Errorf("pocketbase: tickets collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("ticket_id", ticket.ID)
	record.Set("order_id", ticket.OrderID)
	record.Set("category_id", ticket.CategoryID)
	record.Set("price", ticket.Price.StringFixed(2))
	record.Set("status", string(ticket.Status))
	if ticket.UsedAt != nil {
		record.Set("used_at", ticket.UsedAt.UTC())
	}

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		// lost a race against a concurrent create of the same id
		if _, findErr := s.FindByTicketID(ctx, ticket.ID); findErr == nil {
			return status.ErrTicketExists
		}
		return fmt.Errorf("pocketbase: create ticket: %w", err)
	}
	return nil
}

func (s *PocketBaseTicketStore) Ping(ctx context.Context) error {
	var n int
	return s.app.DB().NewQuery("SELECT 1").WithContext(ctx).Row(&n)
}

func (r pbTicketRow) toTicket() (*models.Ticket, error) {
	t := &models.Ticket{
		ID:         r.TicketID,
		OrderID:    r.OrderID,
		CategoryID: r.CategoryID,
		Status:     models.TicketStatus(r.Status),
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("pocketbase: ticket %s has invalid status %q", r.TicketID, r.Status)
	}

	if r.Price != "" {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("pocketbase: ticket %s price: %w", r.TicketID, err)
		}
		t.Price = price
	}
	if r.Created != "" {
		created, err := types.ParseDateTime(r.Created)
		if err != nil {
			return nil, fmt.Errorf("pocketbase: ticket %s created: %w", r.TicketID, err)
		}
		t.CreatedAt = created.Time()
	}
	if r.UsedAt != "" {
		used, err := types.ParseDateTime(r.UsedAt)
		if err != nil {
			return nil, fmt.Errorf("pocketbase: ticket %s used_at: %w", r.TicketID, err)
		}
		if !used.IsZero() {
			usedAt := used.Time()
			t.UsedAt = &usedAt
		}
	}
	return t, nil
}
