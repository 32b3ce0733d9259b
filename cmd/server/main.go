package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/buyback-hub/buyback-hub/internal/api/http"
	"github.com/buyback-hub/buyback-hub/internal/application/inventory"
	"github.com/buyback-hub/buyback-hub/internal/application/moderation"
	"github.com/buyback-hub/buyback-hub/internal/application/notifier"
	"github.com/buyback-hub/buyback-hub/internal/application/pipeline"
	"github.com/buyback-hub/buyback-hub/internal/application/reward"
	"github.com/buyback-hub/buyback-hub/internal/application/scheduler"
	"github.com/buyback-hub/buyback-hub/internal/config"
	"github.com/buyback-hub/buyback-hub/internal/domain/event"
	"github.com/buyback-hub/buyback-hub/internal/infrastructure/postgres"
	"github.com/buyback-hub/buyback-hub/internal/infrastructure/schedule"
	"github.com/buyback-hub/buyback-hub/internal/infrastructure/telegram"
)

// resyncBatchSize bounds one wake index resync sweep.
const resyncBatchSize = 1000

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	publishLoc, err := time.LoadLocation(cfg.PublishTimezone)
	if err != nil {
		log.Fatalf("timezone error: %v", err)
	}

	// repositories
	productRepo := postgres.NewProductRepository(pool)
	taskRepo := postgres.NewTaskRepository(pool)
	stepRepo := postgres.NewStepRepository(pool)
	buybackRepo := postgres.NewBuybackRepository(pool)
	responseRepo := postgres.NewResponseRepository(pool)
	reminderRepo := postgres.NewReminderRepository(pool)
	participantRepo := postgres.NewParticipantRepository(pool)
	payoutRepo := postgres.NewPayoutRepository(pool)

	// infrastructure
	redisClient := schedule.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	delayedIndex := schedule.NewDelayedIndex(redisClient)
	messenger := telegram.NewMessenger(cfg.TelegramAPIBase, cfg.BotToken, logger)

	// services
	bus := event.NewBus()
	inventorySvc := inventory.NewService(productRepo, buybackRepo, logger)
	schedulerSvc := scheduler.NewService(reminderRepo, buybackRepo, taskRepo, stepRepo, participantRepo, delayedIndex, messenger, publishLoc, logger)
	pipelineSvc := pipeline.NewService(buybackRepo, responseRepo, productRepo, taskRepo, stepRepo, participantRepo, inventorySvc, schedulerSvc, bus, logger)
	schedulerSvc.SetExpirer(pipelineSvc)
	moderationSvc := moderation.NewService(responseRepo, buybackRepo, taskRepo, stepRepo, pipelineSvc, logger)
	rewardSvc := reward.NewService(payoutRepo, buybackRepo, taskRepo, productRepo, participantRepo, logger)

	// event subscribers
	notifier.New(participantRepo, taskRepo, stepRepo, buybackRepo, messenger, logger).Register(bus)
	bus.Subscribe(event.KindApproved, event.HandlerFunc(func(ctx context.Context, e event.Event) {
		if _, err := rewardSvc.Complete(ctx, e.BuybackID); err != nil {
			logger.Error().Err(err).Str("buyback_id", e.BuybackID.String()).Msg("reward completion failed")
		}
	}))

	// API server
	apiServer := httpapi.NewServer(pipelineSvc, moderationSvc, inventorySvc, rewardSvc)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// scheduler loop
	go func() {
		ticker := time.NewTicker(cfg.SchedulerPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := schedulerSvc.ProcessDue(context.Background(), time.Now().UTC(), int64(cfg.SchedulerBatchSize)); err != nil {
				logger.Error().Err(err).Msg("scheduler pass failed")
			}
		}
	}()

	// wake index resync: the job rows are the ledger, redis only holds
	// wake times. Seed once at startup, then sweep periodically so a
	// flushed redis or a failed fire cannot orphan pending jobs.
	go func() {
		resync := func() {
			if n, err := schedulerSvc.ResyncIndex(context.Background(), resyncBatchSize); err != nil {
				logger.Error().Err(err).Msg("wake index resync failed")
			} else if n > 0 {
				logger.Debug().Int("jobs", n).Msg("wake index resynced")
			}
		}
		resync()
		ticker := time.NewTicker(cfg.SchedulerResyncInterval)
		defer ticker.Stop()
		for range ticker.C {
			resync()
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
