// Command syncd runs the scheduled report sync and serves gRPC health.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/app"
	"github.com/and161185/fba-recon/internal/config"
	"github.com/and161185/fba-recon/internal/limiter"
	"github.com/and161185/fba-recon/internal/migrate"
	"github.com/and161185/fba-recon/internal/scheduler"
	grpcserver "github.com/and161185/fba-recon/internal/server/grpc"
)

var buildDate = "unknown"

// main loads configuration, migrates the schema, starts the cron scheduler
// and the health server, and shuts both down on SIGINT/SIGTERM.
func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	runNow := flag.Bool("run-now", false, "run one sync immediately after start")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", app.Version),
		zap.String("buildDate", buildDate),
		zap.String("region", cfg.Region),
		zap.Bool("signing", cfg.SigningEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wiring", zap.Error(err))
	}
	defer a.Close()

	health := grpcserver.NewHealth()
	lim := limiter.NewPG(a.DB.Pool, 6*time.Hour, 3, 24*time.Hour)
	job := scheduler.NewSyncJob(a.Accounts, a.Service, lim, health, cfg.ReportWindowDays, logger.Named("sync"))
	sched := scheduler.New(job, 2*time.Hour, logger.Named("cron"))
	if err := sched.Start(cfg.SyncSchedule); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	if *runNow {
		go func() {
			if err := job.Run(ctx); err != nil {
				logger.Error("initial sync", zap.Error(err))
			}
		}()
	}

	s := grpcserver.New(logger, health, cfg.Dev())
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("health listening", zap.String("addr", cfg.GRPCAddr))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	health.Shutdown()
	select {
	case <-sched.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("sync still running at shutdown")
	}
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.Stop()
	}
	logger.Info("shutdown complete")
}
