package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ticket-admission/config"
	"ticket-admission/internal/clock"
	"ticket-admission/internal/handlers"
	"ticket-admission/internal/notify"
	"ticket-admission/internal/qrticket"
	"ticket-admission/internal/services"
	"ticket-admission/internal/store"
	"ticket-admission/monitoring"
	"ticket-admission/security"
	"ticket-admission/utils"
)

const storeBreakerName = "ticket-store"

// engine holds everything the serve command wires from configuration.
type engine struct {
	store    store.TicketStore
	redis    *redis.Client
	pgPool   *pgxpool.Pool
	limiter  *security.RateLimiter
	notifier *notify.GateNotifier
	monitor  *monitoring.Monitor

	scan    *handlers.ScanHandler
	tickets *handlers.TicketHandler
	admin   *handlers.AdminHandler
	health  *handlers.HealthHandler
}

func newEngine(ctx context.Context, app core.App, cfg *config.Config) (*engine, error) {
	eng := &engine{}
	if cfg.EnableMetrics {
		eng.monitor = monitoring.NewMonitor()
	}

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize Redis. It is required for the redis store and optional
	// otherwise, where it only backs scan rate limiting.
	if cfg.RedisURL != "" {
		client, err := utils.NewRedisClient(ctx, cfg.RedisURL)
		switch {
		case err == nil:
			eng.redis = client
			eng.limiter = security.NewRateLimiter(client, cfg.ScanRateLimit)
		case cfg.StoreBackend == config.StoreBackendRedis:
			return nil, err
		default:
			slog.Warn("redis unavailable, scan rate limiting disabled", "error", err)
		}
	}

	backend, err := eng.newTicketStore(ctx, app, cfg)
	if err != nil {
		eng.close()
		return nil, err
	}
	eng.store = store.WithCircuitBreaker(backend, newStoreBreaker(cfg, eng.monitor))

	// Initialize PubNub
	if cfg.PubNubPublishKey != "" {
		eng.notifier = notify.NewGateNotifier(notify.NewPubNubPublisher(notify.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		}), eng.monitor)
	}

	// Initialize services
	clk := clock.NewSystem()
	policy := qrticket.ExpiryPolicy{
		GracePeriod:          cfg.GracePeriod,
		DefaultEventDuration: cfg.DefaultEventDuration,
	}
	verifier := qrticket.NewVerifier(signer)
	builder := qrticket.NewBuilder(policy, cfg.Location(), clk)

	validation := services.NewValidationService(verifier, eng.store, clk, eng.monitor, cfg.StoreTimeout)
	issuance := services.NewIssuanceService(builder, signer, eng.store, clk, eng.monitor)
	cancellation := services.NewCancellationService(eng.store, eng.monitor)

	// Initialize handlers
	eng.scan = handlers.NewScanHandler(validation, verifier, eng.notifier, clk)
	eng.tickets = handlers.NewTicketHandler(issuance)
	eng.admin = handlers.NewAdminHandler(cancellation)
	if eng.redis != nil {
		eng.health = handlers.NewHealthHandler(eng.store, eng.redis)
	} else {
		eng.health = handlers.NewHealthHandler(eng.store, nil)
	}

	return eng, nil
}

// newSigner derives the HMAC keys from the configured secrets. The secrets
// go no further than this function.
func newSigner(cfg *config.Config) (*qrticket.Signer, error) {
	current, err := qrticket.DeriveKey([]byte(cfg.SigningSecret))
	if err != nil {
		return nil, fmt.Errorf("signing secret: %w", err)
	}

	previous := make([][]byte, 0, len(cfg.PreviousSigningSecrets))
	for i, secret := range cfg.PreviousSigningSecrets {
		key, err := qrticket.DeriveKey([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("previous signing secret #%d: %w", i+1, err)
		}
		previous = append(previous, key)
	}

	return qrticket.NewSigner(current, previous...)
}

func (eng *engine) newTicketStore(ctx context.Context, app core.App, cfg *config.Config) (store.TicketStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPocketBase:
		return store.NewPocketBaseTicketStore(app), nil
	case config.StoreBackendRedis:
		return store.NewRedisTicketStore(eng.redis), nil
	case config.StoreBackendPostgres:
		pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		eng.pgPool = pool

		pg := store.NewPostgresTicketStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg, nil
	case config.StoreBackendMemory:
		slog.Warn("using in-memory ticket store, ticket status is lost on restart")
		return store.NewMemoryTicketStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newStoreBreaker(cfg *config.Config, monitor *monitoring.Monitor) *utils.CircuitBreaker {
	monitor.TrackBreakerState(storeBreakerName, int(utils.StateClosed))

	return utils.NewCircuitBreaker(storeBreakerName, utils.BreakerSettings{
		MaxRequests:  cfg.BreakerMaxRequests,
		Timeout:      cfg.BreakerOpenTimeout,
		FailureRatio: cfg.BreakerFailureRatio,
		IsFailure:    store.IsFailure,
		OnStateChange: func(name string, from, to utils.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			monitor.TrackBreakerState(name, int(to))
		},
	})
}

func (eng *engine) registerRoutes(se *core.ServeEvent, cfg *config.Config) {
	// Scanner endpoints
	scan := se.Router.Group("/api/v1/scan")
	scan.Bind(apis.RequireAuth("scanners", core.CollectionNameSuperusers))
	scan.BindFunc(security.RejectSuspiciousAgents())
	if eng.limiter != nil {
		scan.BindFunc(eng.limiter.ScanRateLimit())
	}
	scan.POST("/validate", eng.scan.Validate)
	scan.POST("/precheck", eng.scan.PreCheck)

	// Issuance and admin endpoints
	api := se.Router.Group("/api/v1")
	api.Bind(apis.RequireSuperuserAuth())
	api.POST("/tickets/issue", eng.tickets.IssueTicket)
	api.POST("/admin/tickets/{ticketId}/cancel", eng.admin.CancelTicket)

	// Health check
	se.Router.GET("/health", eng.health.Health)
	se.Router.GET("/health/live", healthy)

	if cfg.EnableMetrics {
		se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
	}
}

func (eng *engine) close() {
	if eng.redis != nil {
		if err := eng.redis.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	if eng.pgPool != nil {
		eng.pgPool.Close()
	}
}
