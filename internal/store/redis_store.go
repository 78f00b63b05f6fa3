package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-admission/internal/status"
	"ticket-admission/models"
)

const redisTicketKeyPrefix = "ticket:"

// Lua scripts run as one server-side step, so no other client observes a
// half-applied change.
const (
	// KEYS[1] ticket hash. ARGV: expected, next, used_at ('' to leave unset).
	// Returns -1 missing, 0 status mismatch, 1 applied.
	setStatusIfCurrentScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
	return -1
end
if current ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'used_at', ARGV[3])
end
return 1
`

	// KEYS[1] ticket hash. ARGV: ticket_id, order_id, category_id, price,
	// status, created_at, used_at ('' when unset).
	// Returns 0 when the ticket exists, 1 when created.
	createTicketScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'ticket_id', ARGV[1],
	'order_id', ARGV[2],
	'category_id', ARGV[3],
	'price', ARGV[4],
	'status', ARGV[5],
	'created_at', ARGV[6])
if ARGV[7] ~= '' then
	redis.call('HSET', KEYS[1], 'used_at', ARGV[7])
end
return 1
`
)

// RedisTicketStore keeps each ticket in a hash at ticket:{id}.
type RedisTicketStore struct {
	redis redis.Cmdable
}

func NewRedisTicketStore(client redis.Cmdable) *RedisTicketStore {
	return &RedisTicketStore{redis: client}
}

func redisTicketKey(ticketID string) string {
	return redisTicketKeyPrefix + ticketID
}

func (s *RedisTicketStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	fields, err := s.redis.HGetAll(ctx, redisTicketKey(ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get ticket: %w", err)
	}
	if len(fields) == 0 {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromHash(ticketID, fields)
}

func (s *RedisTicketStore) SetStatusIfCurrentStatus(ctx context.Context, ticketID string, expected, next models.TicketStatus, usedAt *time.Time) (bool, error) {
	if err := checkTransition(expected, next); err != nil {
		return false, err
	}

	result, err := s.redis.Eval(ctx, setStatusIfCurrentScript,
		[]string{redisTicketKey(ticketID)},
		string(expected), string(next), formatRedisTime(usedAt),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: set ticket status: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -1:
		return false, status.ErrTicketNotFound
	default:
		return false, fmt.Errorf("redis: unexpected script result %d", result)
	}
}

func (s *RedisTicketStore) Create(ctx context.Context, ticket models.Ticket) error {
	if err := checkNewTicket(ticket); err != nil {
		return err
	}

	created, err := s.redis.Eval(ctx, createTicketScript,
		[]string{redisTicketKey(ticket.ID)},
		ticket.ID,
		ticket.OrderID,
		ticket.CategoryID,
		ticket.Price.StringFixed(2),
		string(ticket.Status),
		formatRedisTime(&ticket.CreatedAt),
		formatRedisTime(ticket.UsedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: create ticket: %w", err)
	}
	if created == 0 {
		return status.ErrTicketExists
	}
	return nil
}

func (s *RedisTicketStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func ticketFromHash(ticketID string, fields map[string]string) (*models.Ticket, error) {
	t := &models.Ticket{
		ID:         ticketID,
		OrderID:    fields["order_id"],
		CategoryID: fields["category_id"],
		Status:     models.TicketStatus(fields["status"]),
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("redis: ticket %s has invalid status %q", ticketID, fields["status"])
	}

	if v := fields["price"]; v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("redis: ticket %s price: %w", ticketID, err)
		}
		t.Price = price
	}
	if v := fields["created_at"]; v != "" {
		created, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis: ticket %s created_at: %w", ticketID, err)
		}
		t.CreatedAt = created
	}
	if v := fields["used_at"]; v != "" {
		used, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis: ticket %s used_at: %w", ticketID, err)
		}
		t.UsedAt = &used
	}
	return t, nil
}

func formatRedisTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
