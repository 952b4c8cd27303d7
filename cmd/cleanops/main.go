package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cleanops/internal/bot"
	"cleanops/internal/config"
	"cleanops/internal/lock"
	"cleanops/internal/logging"
	"cleanops/internal/metrics"
	"cleanops/internal/model"
	"cleanops/internal/repository"
	"cleanops/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
		File:        cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("cleanops stopped with error", zap.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL, log.Named("db"))
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	workerRepo := repository.NewWorkerRepository(db)
	sedeRepo := repository.NewSedeRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)

	sink, stopMetrics := newMetrics(cfg, log)
	defer stopMetrics()

	locker, closeLocker := newLocker(ctx, cfg, log)
	defer closeLocker()

	materializer := service.NewMaterializer(ruleRepo, log.Named("materializer"))
	job := service.NewMaterializeJob(materializer, sedeRepo, locker, cfg.LockTTL, sink, log.Named("materialize"))
	assigner := service.NewAssigner(taskRepo, availabilityRepo, service.NewDebouncer(cfg.DebounceWindow), sink, log.Named("assign"))

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Deps{
		Workers:      workerRepo,
		Sedes:        sedeRepo,
		Tasks:        service.NewTaskService(taskRepo),
		Rules:        service.NewRuleService(ruleRepo),
		Availability: service.NewAvailabilityService(availabilityRepo),
		Agenda:       service.NewAgendaService(taskRepo, sedeRepo, workerRepo),
		Assigner:     assigner,
		Materialize:  job,
	}, loc, log.Named("bot"))
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	scheduler := service.NewSchedulerService(loc, log.Named("scheduler"))
	if _, err := scheduler.ScheduleDaily(cfg.MaterializeAt, "materialize", func(ctx context.Context) error {
		_, err := job.Run(ctx, model.DateOf(time.Now().In(loc)))
		if errors.Is(err, service.ErrRunInProgress) {
			return nil
		}
		return err
	}); err != nil {
		return fmt.Errorf("schedule materialize: %w", err)
	}
	if _, err := scheduler.ScheduleDaily(cfg.AgendaAt, "agenda", telegramBot.SendDailyAgendas); err != nil {
		return fmt.Errorf("schedule agenda: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info("cleanops bot started",
		zap.String("timezone", loc.String()),
		zap.String("materialize_at", cfg.MaterializeAt),
		zap.String("agenda_at", cfg.AgendaAt))
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newMetrics(cfg config.Config, log *zap.Logger) (metrics.Sink, func()) {
	if cfg.MetricsAddr == "" {
		return metrics.NoopSink{}, func() {}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheusSink(reg, log.Named("metrics"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	return sink, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func newLocker(ctx context.Context, cfg config.Config, log *zap.Logger) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		return lock.NewLocalLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis not reachable yet, materialize runs fail until it is", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return lock.NewRedisLocker(client, "cleanops:lock:"), func() { _ = client.Close() }
}
