package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/gateway"
	"github.com/xaenox/pocheck/internal/orchestrator"
	"github.com/xaenox/pocheck/pkg/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "pocheck",
		Short:         "Procurement data lookup assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	root.AddCommand(newBotCmd(), newGatewayCmd(), newAskCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

func loadCatalog(cfg *config.Config, logger *zap.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.LoadFile(cfg.Orchestrator.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("Catalog loaded",
		zap.String("file", cfg.Orchestrator.CatalogFile),
		zap.Int("templates", cat.Len()))
	return cat, nil
}

// newSessionFactory wires a session to the configured catalog and gateway.
func newSessionFactory(cfg *config.Config, logger *zap.Logger) (func() *orchestrator.Session, *catalog.Catalog, *gateway.Client, error) {
	cat, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	policy, err := orchestrator.ParsePolicy(cfg.Orchestrator.UnknownTemplate)
	if err != nil {
		return nil, nil, nil, err
	}
	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, logger)

	factory := func() *orchestrator.Session {
		return orchestrator.NewSession(cat, client, logger,
			orchestrator.WithUnknownTemplatePolicy(policy),
			orchestrator.WithAIEnabled(cfg.Orchestrator.AIEnabled),
		)
	}
	return factory, cat, client, nil
}
