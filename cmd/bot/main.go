package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hpol369/ItsNadchos/internal/api"
	"github.com/hpol369/ItsNadchos/internal/config"
	"github.com/hpol369/ItsNadchos/internal/database"
	"github.com/hpol369/ItsNadchos/internal/repository"
	"github.com/hpol369/ItsNadchos/internal/responder"
	"github.com/hpol369/ItsNadchos/internal/service"
	"github.com/hpol369/ItsNadchos/internal/storage"
	"github.com/hpol369/ItsNadchos/internal/telegram"
	"github.com/hpol369/ItsNadchos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(slog.LevelInfo)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	photoStore, err := storage.NewPhotoStore(storage.Config{
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
		log.Fatalf("photo store: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	dailyRepo := repository.NewDailyMessageRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	memoryRepo := repository.NewMemoryRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	userService := service.NewUserService(userRepo)
	ledger := service.NewCreditLedger(cfg, creditRepo, dailyRepo, photoRepo)
	limiter := service.NewRateLimiter(rateLimitRepo)
	tokens := service.NewTokenBroker(tokenRepo, cfg.StorefrontBaseURL)
	conversations := service.NewConversationService(conversationRepo, messageRepo, memoryRepo)
	packages := service.NewPackageService(packageRepo)
	payments := service.NewPaymentService(cfg, ledger, packages, purchaseRepo, conversationRepo)
	gallery := service.NewGalleryService(photoRepo, ledger, photoStore)
	chat := responder.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	if err := packages.EnsureDefaultPackages(ctx); err != nil {
		log.Fatalf("ensure default packages: %v", err)
	}

	bot := telegram.NewBot(cfg, botAPI, logr, userService, limiter, ledger, tokens, conversations, packages, payments, gallery, chat, photoStore.PublicURL)

	push := service.NewDailyPushService(userRepo, notificationRepo, photoRepo, chat, bot, photoStore.PublicURL, logr)

	apiServer := api.NewServer(cfg, logr, tokens, ledger, packages, purchaseRepo, userService, limiter, gallery, push, bot)
	go func() {
		if err := apiServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("api server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
