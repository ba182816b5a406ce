package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/time/rate"

	callrepo "github.com/fathima-sithara/realtime-service/internal/call/repository"
	callusecase "github.com/fathima-sithara/realtime-service/internal/call/usecase"
	chatrepo "github.com/fathima-sithara/realtime-service/internal/chat/repository"
	chatusecase "github.com/fathima-sithara/realtime-service/internal/chat/usecase"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/crypto"
	grouprepo "github.com/fathima-sithara/realtime-service/internal/group/repository"
	groupusecase "github.com/fathima-sithara/realtime-service/internal/group/usecase"
	"github.com/fathima-sithara/realtime-service/internal/realtime"
	"github.com/fathima-sithara/realtime-service/internal/server"
	userrepo "github.com/fathima-sithara/realtime-service/internal/user/repository"
	"github.com/fathima-sithara/realtime-service/internal/video"
	"github.com/fathima-sithara/realtime-service/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("APP_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(logger.Config{Development: cfg.Logger.Development})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	key, err := cfg.EncryptionKey()
	if err != nil {
		logg.Fatalw("encryption key", "err", err)
	}
	codec, err := crypto.New(key)
	if err != nil {
		logg.Fatalw("codec", "err", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logg.Fatalw("database ping", "err", err)
	}
	cancelPing()
	defer func() { _ = db.Close() }()

	users := userrepo.NewUserRepository(db)
	registry := realtime.NewRegistry(users, logg)
	router := realtime.NewRouter(registry, logg)

	chats := chatusecase.NewChatUsecase(chatrepo.NewChatRepository(db), users, codec, router, logg)
	groups := groupusecase.NewGroupUsecase(grouprepo.NewGroupRepository(db), codec, router, logg)

	rooms := video.NewClient(cfg.Video.BaseURL, cfg.Video.APIKey, cfg.Video.TokenSecret, cfg.VideoTokenTTL, logg)
	calls := callusecase.NewCallCoordinator(
		callrepo.NewCallRepository(db), chats, rooms, groups, router, registry, logg)

	eventLimit := rate.Limit(float64(cfg.Limits.EventsPerMinute) / 60.0)
	dispatcher := server.NewDispatcher(
		registry, router, chats, groups, calls, users, logg,
		eventLimit, cfg.Limits.EventBurst, cfg.Limits.MaxMessageSize)
	srv := server.New(cfg, dispatcher, logg)

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.Server.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Errorw("metrics listener", "err", err)
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		logg.Infow("starting realtime service", "port", cfg.Server.Port)
		errChan <- srv.Listen(":" + cfg.Server.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logg.Fatalw("server error", "err", err)
	case sig := <-stop:
		logg.Infow("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(); err != nil {
		logg.Warnw("server shutdown", "err", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logg.Warnw("metrics shutdown", "err", err)
	}
	logg.Infow("shutdown complete")
}
