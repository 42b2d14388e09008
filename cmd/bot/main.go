package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/savelov/reshalka/internal/config"
	"github.com/savelov/reshalka/internal/database"
	"github.com/savelov/reshalka/internal/quota"
	"github.com/savelov/reshalka/internal/repository"
	"github.com/savelov/reshalka/internal/service"
	"github.com/savelov/reshalka/internal/telegram"
	"github.com/savelov/reshalka/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.WebAppURL == "" {
		log.Fatalf("config: WEBAPP_URL is required for the bot")
	}

	logr := logger.New(cfg.LogLevel)

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

	userRepo := repository.NewUserRepository(db)
	ledger := quota.NewLedger(userRepo, cfg.FreeRequestLimit, cfg.FreeWindow)
	userService := service.NewUserService(userRepo, ledger)

	bot := telegram.NewBot(botAPI, logr, userService, cfg.WebAppURL)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
