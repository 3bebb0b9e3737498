package coordinatorcmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/skifli/bruty/internal/config"
	"github.com/skifli/bruty/internal/observability"
	"github.com/skifli/bruty/internal/server"
	"github.com/skifli/bruty/internal/server/handlers"
	"github.com/skifli/bruty/pkg/admission"
	"github.com/skifli/bruty/pkg/dispatch"
	"github.com/skifli/bruty/pkg/enumerator"
	"github.com/skifli/bruty/pkg/session"
	"github.com/skifli/bruty/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func openStore(cfg config.CoordinatorConfig) (store.KV, error) {
	switch cfg.StoreBackend {
	case "", "file":
		return store.NewFile(cfg.StatePath)
	case "badger":
		return store.NewBadger(cfg.StatePath)
	case "s3":
		return store.NewS3(context.Background(), cfg.StatePath, cfg.StartingPrefix)
	default:
		return nil, fmt.Errorf("coordinatorcmd: unknown store backend %q", cfg.StoreBackend)
	}
}

type storeHealthChecker struct{ kv store.KV }

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	_, _, err := c.kv.Get(ctx, "bruty/health_probe")
	return err
}

type admissionHealthChecker struct{ table *admission.Table }

func (c admissionHealthChecker) CheckHealth(ctx context.Context) error {
	if c.table.Len() == 0 {
		return fmt.Errorf("coordinatorcmd: no admitted users configured")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("coordinatorcmd: load config: %w", err)
	}

	logger, err := observability.CLILogger(observability.Config{Level: cfg.Logging.Level, Profile: cfg.Logging.Profile})
	if err != nil {
		return fmt.Errorf("coordinatorcmd: build logger: %w", err)
	}
	defer logger.Sync()

	kv, err := openStore(cfg.Coordinator)
	if err != nil {
		return fmt.Errorf("coordinatorcmd: open store: %w", err)
	}
	defer kv.Close()

	runState := store.NewRunStateStore(kv)
	admissionTable := admission.NewTable(cfg.Coordinator.Users)
	gate := dispatch.NewConnectedWorkers()

	reconciler, err := dispatch.NewReconciler(ctx, runState, cfg.Coordinator.StartingPrefix, cfg.Workers*4)
	if err != nil {
		return fmt.Errorf("coordinatorcmd: build reconciler: %w", err)
	}

	handlers.InitHealthManager(server.Version)
	healthManager := handlers.GetHealthManager()
	healthManager.RegisterChecker("store", storeHealthChecker{kv: kv})
	healthManager.RegisterChecker("admission", admissionHealthChecker{table: admissionTable})

	srv := server.New(cfg.Server.Host, cfg.Server.Port)
	srv.WireSessions(session.Config{
		HeartbeatTimeout:   30 * time.Second,
		Admission:          admissionTable,
		Reconciler:         reconciler,
		Gate:               gate,
		CheckClientVersion: admission.CheckClientVersion,
		Logger:             logger,
	}, logger)

	httpServer := &http.Server{
		Addr:         srv.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("coordinator listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return enumerator.Run(gctx, enumerator.Config{
			StartingPrefix:    cfg.Coordinator.StartingPrefix,
			WatermarkPrefix:   reconciler.Watermark(),
			CoordinatorLength: cfg.Coordinator.CoordinatorLength,
		}, gate, reconciler)
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
