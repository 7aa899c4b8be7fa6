package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/daole6868/BOT-BAO-DON-HANG/internal/api/http"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/http/handlers"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/app"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/bot"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/config"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/media"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/persistence"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/scheduler"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/service"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/storage"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.ValidateBot(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.Store, cfg.Store.RunMigrations, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	defer store.Close()

	pingers := map[string]handlers.Pinger{"store": store.Pinger}

	var archival scheduler.ArchivalQueue
	switch cfg.Lifecycle.ArchivalBackend {
	case config.ArchivalBackendRedis:
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		archival = scheduler.NewRedisArchivalQueue(redis.Cmdable(), "")
		pingers["redis"] = redis
	default:
		archival = scheduler.NewMemoryArchivalQueue()
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}
	provider := chat.NewDiscord(session, cfg.Discord.GuildID)

	objects, err := storage.NewCloudinary(cfg.Cloudinary)
	if err != nil {
		logger.Fatal("failed to init object storage", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	pipeline := media.NewPipeline(
		media.NewHTTPFetcher(cfg.Lifecycle.FetchTimeout, cfg.Lifecycle.MaxAttachmentBytes),
		objects,
		logger.Named("media"),
		media.WithSpacing(cfg.Lifecycle.UploadSpacing),
	)
	notifier := service.NewDuplicateNotifier(provider, cfg.Discord.AdminCheckChannelID, dispatcher, metrics, logger.Named("duplicates"))

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo: store.Tickets,
		Chat:       provider,
		Pipeline:   pipeline,
		Storage:    objects,
		Archival:   archival,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("lifecycle"),
		Settings:   service.LifecycleSettingsFromConfig(cfg),
	})
	sweeper := service.NewSweeper(service.SweeperDependencies{
		TicketRepo: store.Tickets,
		Storage:    objects,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("sweeper"),
		Spacing:    cfg.Lifecycle.DeleteSpacing,
	})

	notificationService := service.NewNotificationService(dispatcher, provider, logger.Named("notifications"), cfg.Discord.AdminAnnounceChannelID)
	worker.StartNotificationWorker(notificationService)

	dispatch := bot.New(session, provider, lifecycle, bot.Config{
		AuditChannelID:          cfg.Discord.AdminCheckChannelID,
		AdminRoleID:             cfg.Discord.AdminRoleID,
		SellerAnnounceChannelID: cfg.Discord.SellerAnnounceChannelID,
		BuyerAnnounceChannelID:  cfg.Discord.BuyerAnnounceChannelID,
	}, logger.Named("bot"), metrics)
	dispatch.Register(session)

	if err := session.Open(); err != nil {
		logger.Fatal("failed to connect to discord", zap.Error(err))
	}

	cron := scheduler.NewCron(logger.Named("cron"))
	if err := worker.RegisterSweepJob(ctx, cron, sweeper, cfg.Lifecycle.SweepSchedule, cfg.Lifecycle.RetentionDays, logger.Named("sweeper")); err != nil {
		logger.Fatal("failed to schedule retention sweep", zap.Error(err))
	}
	go func() {
		if err := cron.Start(ctx); err != nil {
			logger.Error("cron stopped", zap.Error(err))
		}
	}()

	archivalWorker := worker.NewArchivalWorker(archival, lifecycle, cfg.Lifecycle.ArchivalPollInterval, logger.Named("archival"))
	go archivalWorker.Run(ctx)

	web := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(web, logger, metrics, 10*time.Second)
	httptransport.RegisterRoutes(web, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pingers),
		Metrics: metrics,
	})

	go func() {
		if err := web.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	dispatch.Close()
	if err := session.Close(); err != nil {
		logger.Warn("discord close", zap.Error(err))
	}
	_ = web.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
