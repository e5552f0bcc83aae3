// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"telegram-relay/internal/config"
	"telegram-relay/internal/domain/ports/adapter"
	tele "telegram-relay/internal/infra/adapters/telegram"
	"telegram-relay/internal/infra/api"
	httpserver "telegram-relay/internal/infra/http"
	"telegram-relay/internal/infra/logging"
	"telegram-relay/internal/infra/metrics"
	"telegram-relay/internal/usecase"
)

// set via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		envFile string
		devMode bool
	)

	root := &cobra.Command{
		Use:          "telegram-relay",
		Short:        "HTTP endpoint that forwards messages to the Telegram Bot API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgPath, envFile, devMode)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	root.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with RELAY_* overrides")
	root.Flags().BoolVar(&devMode, "dev", false, "developer mode (console logs, unredacted tokens)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "telegram-relay %s (%s)\n", version, commit)
		},
	})
	return root
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Provider ----
	var sender adapter.TelegramSender
	if cfg.Telegram.DryRun {
		logger.Warn().Msg("telegram.dry_run set; messages are logged, not sent")
		sender = tele.NewNoopSender(logger)
	} else {
		sender = tele.NewBotAPISender(cfg.Telegram, logger, cfg.Runtime.Dev)
	}

	// ---- Use case + HTTP ----
	relayUC := usecase.NewRelayUseCase(sender, logger)
	relaySrv := httpserver.NewServer("relay", cfg.Server.Port,
		api.NewServer(relayUC, cfg, logger).Routes(),
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger)

	servers := []*httpserver.Server{relaySrv}
	if cfg.AdminEnabled() {
		adminHandler := api.Chain(httpserver.AdminHandler(), api.Recover(logger))
		servers = append(servers, httpserver.NewServer("admin", cfg.Admin.Port, adminHandler,
			cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(srv.Start)
	}

	// ---- Graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		return shutdown(servers, cfg, logger)
	})

	return g.Wait()
}

func shutdown(servers []*httpserver.Server, cfg *config.Config, logger *zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
