package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/channelstats"
	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/db"
	"github.com/dicemaniacs/backend/internal/events"
	"github.com/dicemaniacs/backend/internal/metrics"
	"github.com/dicemaniacs/backend/internal/repositories"
	"github.com/dicemaniacs/backend/internal/services"
)

const jobLockTTL = 5 * time.Minute

type job struct {
	name string
	def  gocron.JobDefinition
	fn   func(context.Context) error
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	countdownRepo := repositories.NewCountdownRepo(pool)
	predictionRepo := repositories.NewPredictionRepo(pool)
	reportRepo := repositories.NewReportRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	roundService := services.NewRoundService(countdownRepo, predictionRepo, auditRepo, publisher, cfg, log)
	counter := channelstats.NewClient(cfg.TMEFetchTimeoutMS, cfg.TMEFetchMaxRetries, log)
	reportService := services.NewReportService(reportRepo, counter, cfg, log)

	r := &runner{ctx: ctx, locker: db.NewLocker(rdb, "lock:job:"), log: log}

	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		log.Fatal("failed to create scheduler", zap.Error(err))
	}

	jobs := []job{
		{
			name: "settle_expired",
			def:  gocron.DurationJob(cfg.SettleInterval),
			fn: func(ctx context.Context) error {
				results, err := roundService.SettleExpired(ctx)
				for _, res := range results {
					log.Info("round settled by worker",
						zap.Int64("round_id", res.CountdownID),
						zap.Int("winners", res.WinnersCount),
						zap.Bool("already_settled", res.AlreadySettled),
					)
				}
				return err
			},
		},
		{
			name: "daily_report",
			def:  gocron.CronJob(cfg.ReportCron, false),
			fn: func(ctx context.Context) error {
				_, err := reportService.BuildDaily(ctx, time.Now().UTC().AddDate(0, 0, -1))
				return err
			},
		},
	}
	if cfg.RoundOpenCron != "" {
		jobs = append(jobs, job{
			name: "open_round",
			def:  gocron.CronJob(cfg.RoundOpenCron, false),
			fn: func(ctx context.Context) error {
				_, err := roundService.OpenScheduledRound(ctx)
				return err
			},
		})
	}

	for _, j := range jobs {
		_, err := sched.NewJob(
			j.def,
			gocron.NewTask(r.run, j.name, j.fn),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			log.Fatal("failed to register job", zap.String("job", j.name), zap.Error(err))
		}
	}

	sched.Start()
	log.Info("worker started", zap.Int("jobs", len(jobs)))

	// Metrics endpoint
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())
	go func() {
		addr := fmt.Sprintf(":%s", cfg.WorkerPort)
		if err := app.Listen(addr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	if err := sched.Shutdown(); err != nil {
		log.Error("scheduler shutdown", zap.Error(err))
	}
	_ = app.Shutdown()
}

// runner executes a job under a redis lock so only one worker replica runs it.
type runner struct {
	ctx    context.Context
	locker *db.Locker
	log    *zap.Logger
}

func (r *runner) run(name string, fn func(context.Context) error) {
	unlock, err := r.locker.TryLock(r.ctx, name, jobLockTTL)
	if errors.Is(err, db.ErrLockHeld) {
		r.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
		return
	}
	if err != nil {
		r.log.Error("job lock failed", zap.String("job", name), zap.Error(err))
		return
	}
	defer unlock()

	start := time.Now()
	err = fn(r.ctx)
	metrics.RecordJob(name, time.Since(start), err == nil)
	if err != nil {
		r.log.Error("job failed", zap.String("job", name), zap.Error(err))
	}
}
