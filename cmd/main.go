package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/metrics"
	"github.com/asafaviv-devops/image-gallery/internal/repository"
	"github.com/asafaviv-devops/image-gallery/internal/server"
	"github.com/asafaviv-devops/image-gallery/internal/service"
	"github.com/asafaviv-devops/image-gallery/pkg/logger"
)

func main() {
	cfg, log, err := bootstrap()
	if err != nil {
		os.Stderr.WriteString("CRITICAL: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer, cfg.App.Version)

	store, err := repository.New(ctx, &cfg.S3, m, log.Desugar())
	if err != nil {
		log.Fatal("Failed to create storage client: ", err)
	}

	gallery := service.NewGalleryService(store, cfg, log.Desugar())

	probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
	if !gallery.CheckConnection(probeCtx) {
		log.Warnw("Storage is not reachable at startup, serving in degraded mode",
			"driver", cfg.S3.Driver,
			"bucket", cfg.S3.BucketName)
	}
	cancelProbe()

	srv := server.New(cfg, gallery, m, prometheus.DefaultGatherer, log.Desugar())

	go func() {
		log.Infof("Starting server on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

// bootstrap loads the config, .env included, and builds the logger from it.
func bootstrap() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewSugared(cfg.App.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
