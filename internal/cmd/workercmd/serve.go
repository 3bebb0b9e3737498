package workercmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/skifli/bruty/internal/config"
	"github.com/skifli/bruty/internal/observability"
	"github.com/skifli/bruty/pkg/probe"
	"github.com/skifli/bruty/pkg/workerclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("workercmd: load config: %w", err)
	}

	logger, err := observability.CLILogger(observability.Config{Level: cfg.Logging.Level, Profile: cfg.Logging.Profile})
	if err != nil {
		return fmt.Errorf("workercmd: build logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Worker.CoordinatorURL == "" {
		return fmt.Errorf("workercmd: worker.coordinator_url is required")
	}

	oracle, err := probe.NewOracle(probe.DefaultOracleConfig(cfg.Worker.OracleEndpoint))
	if err != nil {
		return fmt.Errorf("workercmd: build oracle: %w", err)
	}

	engineCfg := probe.DefaultEngineConfig()
	if cfg.Worker.Concurrency > 0 {
		engineCfg.Concurrency = cfg.Worker.Concurrency
	} else if cfg.Workers > 0 {
		engineCfg.Concurrency = cfg.Workers
	}
	engine := probe.NewEngine(oracle, engineCfg)

	logger.Info("connecting to coordinator", zap.String("url", cfg.Worker.CoordinatorURL))
	return workerclient.Run(ctx, workerclient.Config{
		CoordinatorURL: cfg.Worker.CoordinatorURL,
		UserID:         cfg.Worker.UserID,
		Secret:         cfg.Worker.Secret,
		ClientVersion:  cfg.Worker.ClientVersion,
		Engine:         engine,
		Logger:         logger,
	})
}
