package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/pocheck/internal/assistant"
	"github.com/xaenox/pocheck/internal/server"
	"github.com/xaenox/pocheck/internal/storage"
	"github.com/xaenox/pocheck/pkg/config"
)

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve the chat gateway, profile and query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			cat, err := loadCatalog(cfg, logger)
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				UserID:      cfg.Server.UserID,
				CORSOrigins: cfg.Server.CORSOrigins,
			}, newResponder(cfg, logger), store, cat, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Listen(cfg.Server.Addr)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down gateway")
				return srv.Shutdown()
			})
			return g.Wait()
		},
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}

	logger.Info("Using SQL storage", zap.String("driver", cfg.Database.Driver))
	store, err := storage.NewSQLStorage(ctx, storage.DatabaseConfig{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Seed the configured analyst so /api/user-profile answers on a fresh database.
	if cfg.Server.UserID == storage.DemoProfile.UserID {
		_, err := store.GetProfile(ctx, cfg.Server.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			profile := storage.DemoProfile
			err = store.SaveProfile(ctx, &profile)
		}
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to seed profile: %w", err)
		}
	}
	return store, nil
}

func newResponder(cfg *config.Config, logger *zap.Logger) assistant.Responder {
	keyword := assistant.NewKeywordResponder()
	if cfg.OpenAI.APIKey == "" {
		logger.Info("OpenAI API key not set, using keyword responder")
		return keyword
	}
	return assistant.NewGPTResponder(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		keyword,
		logger,
	)
}
