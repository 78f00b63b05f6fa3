package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/spf13/cobra"

	"ticket-admission/config"
	_ "ticket-admission/migrations"
	"ticket-admission/utils"
)

// signing secrets are hex encoded, so 32 random bytes give 64 characters
const keygenBytes = 32

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.RootCmd.AddCommand(newKeygenCommand())

	// The engine is only wired for serve, so migrate and keygen run
	// without a signing secret.
	var eng *engine
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		eng, err = newEngine(ctx, se.App, cfg)
		if err != nil {
			return err
		}

		eng.registerRoutes(se, cfg)
		slog.Info("server routes registered",
			"store_backend", cfg.StoreBackend,
			"rate_limit", eng.limiter != nil,
			"gate_notifications", eng.notifier != nil,
		)

		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if eng != nil {
			slog.Info("shutdown signal received, cleaning up")
			eng.close()
		}
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random ticket signing secret",
		Long:  "Prints a secret suitable for TICKET_SIGNING_SECRET. Keep the previous secret in TICKET_SIGNING_PREVIOUS_SECRETS while old tickets are still in circulation.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := utils.GenerateCode(keygenBytes)
			if err != nil {
				return fmt.Errorf("generate secret: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
			return err
		},
	}
}

func healthy(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
