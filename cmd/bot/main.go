package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/pflag"

	"github.com/digkill/ChannelPassBot/internal/admin"
	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/config"
	"github.com/digkill/ChannelPassBot/internal/database"
	"github.com/digkill/ChannelPassBot/internal/repository"
	"github.com/digkill/ChannelPassBot/internal/service"
	"github.com/digkill/ChannelPassBot/internal/session"
	"github.com/digkill/ChannelPassBot/internal/storage"
	"github.com/digkill/ChannelPassBot/internal/telegram"
	"github.com/digkill/ChannelPassBot/pkg/logger"
)

func main() {
	envFile := pflag.String("env-file", "", "path to an env file overlaid on the environment")
	catalogPath := pflag.String("catalog", "", "catalog file (overrides CATALOG_PATH)")
	logLevel := pflag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *catalogPath != "" {
		cfg.CatalogPath = *catalogPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logr := logger.New(cfg.LogLevel)

	store, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(cfg, db, logr); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	notifier := telegram.NewNotifier(botAPI, logr)
	operators := service.NewOperators(cfg.OperatorIDs)
	prompts := service.NewPromptBook()
	messageRepo := repository.NewMessageRepository(db)

	ledger := service.NewLedger(db, logr)
	userService := service.NewUserService(db, store, notifier, operators, logr)
	requestService := service.NewRequestService(session.NewStore(), ledger, store, messageRepo, notifier, operators, prompts, logr)
	moderationService := service.NewModerationService(ledger, repository.NewUserRepository(db), store, notifier, operators, prompts, logr)
	broadcastService := service.NewBroadcastService(db, messageRepo, notifier, cfg.BroadcastPerSecond, logr)

	var uploader service.SnapshotUploader
	if cfg.SnapshotsEnabled() {
		s3, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploader = s3
	}
	snapshotService := service.NewSnapshotService(db, uploader, logr)
	if uploader != nil {
		go snapshotService.Run(ctx, cfg.SnapshotInterval)
	}

	bot := telegram.NewBot(cfg, botAPI, botAPI.Self.UserName, logr, telegram.Deps{
		Users:      userService,
		Requests:   requestService,
		Moderation: moderationService,
		Ledger:     ledger,
		Broadcasts: broadcastService,
		Snapshots:  snapshotService,
		Catalog:    store,
		Operators:  operators,
		Notifier:   notifier,
	})

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, admin.Deps{
		Users:      userService,
		Ledger:     ledger,
		Moderation: moderationService,
		Broadcasts: broadcastService,
		Catalog:    store,
	})
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
