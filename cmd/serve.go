// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/auth"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/engine"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/observability"
	"github.com/xkilldash9x/voicepilot/internal/pending"
	"github.com/xkilldash9x/voicepilot/internal/server"
)

// offlineReply is spoken when no intent endpoint is configured.
const offlineReply = "I'm not connected to an assistant right now."

func newServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voice automation server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerCfg.Addr = addr
			}

			components, err := initializeServeComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize server components: %w", err)
			}
			defer components.Shutdown()
			// If serving panics, the crash handler closes live sessions so
			// remote tabs are not orphaned.
			unregister := onAbort(components.Engine.Shutdown)

			logger.Info("Starting voicepilot server",
				zap.String("address", cfg.Server().Addr),
				zap.String("browser_mode", cfg.Browser().Mode),
				zap.Bool("auth", cfg.Auth().Enabled),
				zap.Bool("persistent_pending", components.DBPool != nil),
			)
			err = components.Server.Run(ctx)
			unregister()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address. (Overrides config/env)")
	return serveCmd
}

// serveComponents holds initialized services.
type serveComponents struct {
	DBPool *pgxpool.Pool
	Engine *engine.Engine
	Server *server.Server
}

// Shutdown releases what the server itself does not own.
func (sc *serveComponents) Shutdown() {
	if sc.DBPool != nil {
		sc.DBPool.Close()
	}
}

// initializeServeComponents handles dependency injection.
func initializeServeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*serveComponents, error) {
	components := &serveComponents{}

	// 1. Pending action store.
	var store pending.Store
	if url := cfg.Database().URL; url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return components, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = pool
		if store, err = pending.NewPostgresStore(ctx, pool, logger); err != nil {
			return components, fmt.Errorf("failed to initialize pending store: %w", err)
		}
	} else {
		logger.Warn("Database URL is not set; pending actions are kept in memory only")
		store = pending.NewMemoryStore()
	}
	queue := pending.NewQueue(store, cfg.Pending(), logger)

	// 2. Intent source.
	src, err := newIntentSource(cfg.Intent(), logger)
	if err != nil {
		return components, err
	}

	// 3. Pages.
	pages, err := engine.NewPageFactory(cfg.Browser(), logger)
	if err != nil {
		return components, fmt.Errorf("failed to configure pages: %w", err)
	}

	// 4. Engine and HTTP surface.
	eng, err := engine.New(cfg, src, queue, pages, logger)
	if err != nil {
		return components, fmt.Errorf("failed to create engine: %w", err)
	}
	components.Engine = eng

	verifier, err := auth.NewVerifier(cfg.Auth(), logger)
	if err != nil {
		return components, fmt.Errorf("failed to configure auth: %w", err)
	}
	srv, err := server.New(cfg.Server(), eng, verifier, logger)
	if err != nil {
		return components, err
	}
	components.Server = srv
	return components, nil
}

func newIntentSource(cfg config.IntentConfig, logger *zap.Logger) (intent.Source, error) {
	if cfg.Endpoint == "" {
		logger.Warn("No intent endpoint configured; every turn gets a canned reply")
		return &intent.Static{Fallback: intent.Response{SpokenResponse: offlineReply}}, nil
	}
	client, err := intent.NewHTTPClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create intent client: %w", err)
	}
	return client, nil
}
