package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/clinicore/clinic-api/internal/config"
	"github.com/clinicore/clinic-api/internal/repository/postgres"
	auditService "github.com/clinicore/clinic-api/internal/service/audit"
	billingService "github.com/clinicore/clinic-api/internal/service/billing"
	directoryService "github.com/clinicore/clinic-api/internal/service/directory"
	"github.com/clinicore/clinic-api/internal/worker"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/logger"
	"github.com/clinicore/clinic-api/pkg/messaging"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("clinic", "worker")
	broker := messaging.NewLogBroker(l.Zerolog())
	auditSvc := auditService.NewService(broker, l, m)
	directorySvc := directoryService.NewService(postgres.NewDirectoryRepository(db), cfg.Clinic.DirectoryCacheTTL)

	billingSvc := billingService.NewService(
		postgres.NewBillRepository(db),
		postgres.NewAppointmentRepository(db),
		postgres.NewChargeRepository(db),
		directorySvc,
		lock.NewLocalLocker(),
		auditSvc,
		m,
		cfg.Billing.DueDays,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	overdue := worker.NewOverdueBillWorker(billingSvc, cfg.Worker.OverdueInterval, l)
	go overdue.Start(ctx)

	l.Info("worker started", "overdue_interval", cfg.Worker.OverdueInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("worker shutting down")
	cancel()
}
