package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/savelov/reshalka/internal/api"
	"github.com/savelov/reshalka/internal/auth"
	"github.com/savelov/reshalka/internal/config"
	"github.com/savelov/reshalka/internal/database"
	"github.com/savelov/reshalka/internal/metrics"
	"github.com/savelov/reshalka/internal/middleware/ratelimit"
	"github.com/savelov/reshalka/internal/provider"
	"github.com/savelov/reshalka/internal/quota"
	"github.com/savelov/reshalka/internal/repository"
	"github.com/savelov/reshalka/internal/service"
	"github.com/savelov/reshalka/internal/storage"
	"github.com/savelov/reshalka/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
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

	metrics.MustRegister(prometheus.DefaultRegisterer)

	client, err := provider.Resolve(cfg, logr)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	solutionRepo := repository.NewSolutionRepository(db)

	ledger := quota.NewLedger(userRepo, cfg.FreeRequestLimit, cfg.FreeWindow)

	var archiver service.ImageArchiver
	if cfg.S3Configured() {
		a, err := storage.NewArchiver(storage.Config{
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
			log.Fatalf("storage archiver: %v", err)
		}
		archiver = a
		logr.Info("problem photo archive enabled", "bucket", cfg.S3Bucket)
	}

	userService := service.NewUserService(userRepo, ledger)
	solveService := service.NewSolveService(logr, ledger, client, archiver)
	solutionService := service.NewSolutionService(solutionRepo)

	server := api.NewServer(cfg.ListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr,
		auth.New(cfg.BotToken, cfg.InitDataMaxAge),
		userService, solveService, solutionService,
		ratelimit.New(cfg.SolveRatePerMinute),
	)

	if err := server.Run(ctx); err != nil {
		logr.Error("api server stopped", "err", err)
	}
}
