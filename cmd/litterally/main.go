// Package main запускает HTTP-сервер сервиса LitterAlly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/litterally/internal/catalog"
	"github.com/mmeshcher/litterally/internal/config"
	"github.com/mmeshcher/litterally/internal/events"
	"github.com/mmeshcher/litterally/internal/handler"
	"github.com/mmeshcher/litterally/internal/middleware"
	"github.com/mmeshcher/litterally/internal/photo"
	"github.com/mmeshcher/litterally/internal/repository"
	"github.com/mmeshcher/litterally/internal/service"
	"github.com/mmeshcher/litterally/internal/storage"
)

type store interface {
	storage.KV
	Close() error
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		sugar.Fatalw("catalog error", "error", err.Error())
	}

	var kv store
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		kv = repo
	} else {
		sugar.Warn("DATABASE_URI is not set, points and settings are kept in memory")
		kv = storage.NewMemory()
	}
	defer kv.Close()

	photos, err := photo.NewDiskStore(cfg.PhotoDir)
	if err != nil {
		sugar.Fatalw("photo storage error", "error", err.Error())
	}

	writer := storage.NewAsyncWriter(kv, logger, 0)
	hub := events.NewHub(logger)

	svc := service.NewService(service.Config{
		Catalog:           cat,
		KV:                kv,
		Writer:            writer,
		Photos:            photos,
		Notifiers:         hub,
		Policy:            cfg.ClassifierPolicy,
		ClassifierAddress: cfg.ClassifierAddress,
		RevealDelay:       cfg.RevealDuration,
		HistoryLimit:      cfg.HistoryLimit,
		Logger:            logger,
	})

	deviceMiddleware := middleware.NewDeviceMiddleware(cfg.DeviceSecret)
	h := handler.NewHandler(svc, hub, logger, deviceMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запись останавливается последней, чтобы не потерять изменения из завершающихся запросов
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()

	g.Go(func() error {
		writer.Run(writerCtx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting litterally server",
			"addr", cfg.RunAddress,
			"policy", cfg.ClassifierPolicy,
			"remoteClassifier", cfg.ClassifierAddress != "",
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		defer stopWriter()
		sugar.Info("shutting down server...")

		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		_ = svc.Close()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}
