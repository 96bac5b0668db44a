package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/clinicore/clinic-api/internal/config"
	"github.com/clinicore/clinic-api/internal/handler"
	appointmentHandler "github.com/clinicore/clinic-api/internal/handler/appointment"
	billingHandler "github.com/clinicore/clinic-api/internal/handler/billing"
	"github.com/clinicore/clinic-api/internal/repository/postgres"
	"github.com/clinicore/clinic-api/internal/router"
	appointmentService "github.com/clinicore/clinic-api/internal/service/appointment"
	auditService "github.com/clinicore/clinic-api/internal/service/audit"
	billingService "github.com/clinicore/clinic-api/internal/service/billing"
	directoryService "github.com/clinicore/clinic-api/internal/service/directory"
	scheduleService "github.com/clinicore/clinic-api/internal/service/schedule"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/logger"
	"github.com/clinicore/clinic-api/pkg/messaging"
	messagingRedis "github.com/clinicore/clinic-api/pkg/messaging/redis"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(nil)

	loc, err := time.LoadLocation(cfg.Clinic.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Clinic.Timezone).Msg("invalid clinic timezone")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Without Redis the API runs single-instance: in-process locking
	// and audit events routed to the log.
	var (
		locker lock.Locker
		broker messaging.Broker
	)
	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse Redis URL")
		}
		locker = lock.NewRedisLocker(goredis.NewClient(opts), cfg.Redis.LockTTL)

		broker, err = messagingRedis.NewRedisBroker(messagingRedis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, l.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	} else {
		locker = lock.NewLocalLocker()
		broker = messaging.NewLogBroker(l.Zerolog())
	}
	defer broker.Close()

	m := metrics.NewMetrics("clinic", "core")

	// Repositories
	directoryRepo := postgres.NewDirectoryRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	chargeRepo := postgres.NewChargeRepository(db)
	billRepo := postgres.NewBillRepository(db)

	// Services
	auditSvc := auditService.NewService(broker, l, m)
	directorySvc := directoryService.NewService(directoryRepo, cfg.Clinic.DirectoryCacheTTL)
	scheduleSvc := scheduleService.NewService(scheduleRepo, loc)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo, directorySvc, scheduleSvc, locker, auditSvc, m, loc)
	billingSvc := billingService.NewService(
		billRepo, appointmentRepo, chargeRepo, directorySvc, locker, auditSvc, m, cfg.Billing.DueDays)

	r := router.NewRouter(
		router.Config{RateLimit: rate.Limit(50), RateBurst: 100},
		handler.NewHealthHandler(db),
		appointmentHandler.NewHandler(appointmentSvc),
		billingHandler.NewHandler(billingSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		l.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
}
