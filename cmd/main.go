package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tablecrm/internal/actions"
	"tablecrm/internal/config"
	"tablecrm/internal/repository"
	"tablecrm/internal/scheduler"
	"tablecrm/internal/service"
	"tablecrm/internal/telegram"
	"tablecrm/internal/transport/https"
	"tablecrm/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := godotenv.Load(); err != nil {
		slog.Default().Warn("Could not load .env file. Using OS environment variables.", "err", err)
	}
	cfg := config.MustLoad()

	db, err := repository.ConnectToBase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}
	if err := repository.RunMigrations(db); err != nil {
		log.Fatal("Failed to run database migrations: ", err)
	}

	repo := repository.NewPgxRepo(db)
	wsManager := ws.NewManager(slog.Default())
	tgSender := telegram.NewSender(cfg.TelegramBotToken, slog.Default())
	runtime := actions.NewRuntime(repo, tgSender, slog.Default())
	segmentService := service.NewService(repo, runtime, wsManager, slog.Default())
	httpHandlers := https.NewHTTPHandlers(segmentService)
	srv := https.NewHTTPServer(httpHandlers, wsManager, ":"+cfg.AppPort, cfg.CORSOrigins)
	sched := scheduler.New(repo, segmentService, cfg.SchedulerInterval, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	// Evaluations kicked off by requests run in the background; tie them to
	// the process lifecycle so shutdown cancels them too.
	segmentService.BindLifecycle(groupCtx)
	group.Go(func() error {
		return sched.Run(groupCtx)
	})
	group.Go(func() error {
		return https.StartServer(groupCtx, srv, db, cfg.ShutdownTimeout)
	})
	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}
