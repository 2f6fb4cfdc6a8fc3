package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docshub/api/internal/app"
	"docshub/api/internal/assistant"
	"docshub/api/internal/auth"
	"docshub/api/internal/config"
	"docshub/api/internal/export"
	"docshub/api/internal/gitrepo"
	"docshub/api/internal/logging"
	"docshub/api/internal/search"
	"docshub/api/internal/session"
	"docshub/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stdout)
	ctx := context.Background()

	dataStore, err := store.OpenBackend(ctx, store.Backend{
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsDir,
		DataDir:       cfg.DataDir,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store unavailable")
	}
	defer dataStore.Close()

	deps := app.Deps{
		Store:  dataStore,
		Tokens: auth.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL),
		Logger: logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		notifier, err := session.NewRedisNotifier(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer notifier.Close()
		deps.Notifier = notifier
		logger.Info().Msg("using redis for change events")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, logger)

	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.HistoryDir).Msg("failed to create history dir")
		}
		deps.History = gitrepo.New(cfg.HistoryDir)
	}

	var publisher export.Publisher
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioPublisher, err := export.NewMinioPublisher(ctx, export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("object storage unavailable; publishing disabled")
		} else {
			publisher = minioPublisher
		}
	}
	deps.Export = export.NewService(publisher)

	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		deps.Assistant = assistant.NewService(assistant.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel))
	}

	service := app.New(deps)
	if meiliClient != nil {
		go func() {
			count, err := service.Reindex(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("startup reindex failed")
				return
			}
			logger.Info().Int("projects", count).Msg("startup reindex queued")
		}()
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("docshub API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
