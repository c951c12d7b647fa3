package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/bot"
	"github.com/xaenox/pocheck/internal/orchestrator"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram chat front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Telegram.Token == "" {
				return errors.New("telegram token is not configured")
			}

			factory, cat, client, err := newSessionFactory(cfg, logger)
			if err != nil {
				return err
			}

			b, err := bot.New(cfg.Telegram.Token, orchestrator.NewSessions(factory), cat, client, logger)
			if err != nil {
				logger.Error("Failed to create bot", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return b.Start(ctx)
		},
	}
}
