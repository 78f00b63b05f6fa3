package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id   TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT '',
	price       NUMERIC(12, 2) NOT NULL DEFAULT 0,
	status      TEXT NOT NULL CHECK (status IN ('ACTIVE', 'USED', 'CANCELLED')),
	used_at     TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresTicketStore relies on a conditional UPDATE for the status
// compare-and-set; Postgres row locking makes the WHERE check and the write
// one step.
type PostgresTicketStore struct {
	pool *pgxpool.Pool
}

func NewPostgresTicketStore(pool *pgxpool.Pool) *PostgresTicketStore {
	return &PostgresTicketStore{pool: pool}
}

// NewPostgresPool connects and pings.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tickets table when missing.
func (s *PostgresTicketStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresTicketStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	const query = `
SELECT ticket_id, order_id, category_id, price::text, status, used_at, created_at
FROM tickets
WHERE ticket_id = $1`

	var (
		t        models.Ticket
		price    string
		ticketSt string
	)
	err := s.pool.QueryRow(ctx, query, ticketID).
		Scan(&t.ID, &t.OrderID, &t.CategoryID, &price, &ticketSt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("postgres: get ticket: %w", err)
	}

	t.Status = models.TicketStatus(ticketSt)
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("postgres: ticket %s price: %w", ticketID, err)
	}
	t.UsedAt = timeUTC(t.UsedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *PostgresTicketStore) SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	if err := checkTransition(expected, next); err != nil {
		return false, err
	}

	const stmt = `
UPDATE tickets
SET status = $3, used_at = COALESCE($4::timestamptz, used_at)
WHERE ticket_id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, stmt, ticketID, string(expected), string(next), timeUTC(usedAt))
	if err != nil {
		return false, fmt.Errorf("postgres: set ticket status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.FindByTicketID(ctx, ticketID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresTicketStore) Create(ctx context.Context, ticket models.Ticket) error {
	if err := checkNewTicket(ticket); err != nil {
		return err
	}

	const stmt = `
INSERT INTO tickets (ticket_id, order_id, category_id, price, status, used_at, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, stmt,
		ticket.ID,
		ticket.OrderID,
		ticket.CategoryID,
		ticket.Price.StringFixed(2),
		string(ticket.Status),
		timeUTC(ticket.UsedAt),
		ticket.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return status.ErrTicketExists
		}
		return fmt.Errorf("postgres: create ticket: %w", err)
	}
	return nil
}

func (s *PostgresTicketStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
