package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/classify-api/internal/config"
	"github.com/Brownie44l1/classify-api/internal/handlers"
	"github.com/Brownie44l1/classify-api/internal/logger"
	"github.com/Brownie44l1/classify-api/internal/metrics"
	"github.com/Brownie44l1/classify-api/internal/model"
	"github.com/Brownie44l1/classify-api/internal/preprocess"
	"github.com/Brownie44l1/classify-api/internal/routes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	appLogger.Infof("Loading model from: %s", cfg.ModelPath)

	modelServer, err := model.NewServer(model.Options{
		ModelPath:      cfg.ModelPath,
		MetadataPath:   cfg.MetadataPath,
		LibraryPath:    cfg.OnnxLibraryPath,
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeoutDuration(),
		InputShape:     preprocess.Shape(),
	})
	if err != nil {
		appLogger.Fatalf("Failed to initialize model server: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	metrics.RegisterPool(reg, modelServer.PoolStats)

	handler := handlers.NewHandler(modelServer, cfg, appLogger, m)

	srv := &http.Server{
		Handler:      routes.New(handler, cfg, appLogger, m, reg),
		Addr:         cfg.Addr(),
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	appLogger.WithFields(log.Fields{
		"input_shape":  modelServer.Metadata.InputShape,
		"output_shape": modelServer.Metadata.OutputShape,
		"pool_size":    cfg.PoolSize,
	}).Info("Model loaded")
	appLogger.Info("Endpoints:")
	appLogger.Info("  POST /predict - Predict from image upload (form field 'file')")
	appLogger.Info("  GET  /health  - Health check")
	appLogger.Info("  GET  /metrics - Prometheus metrics")
	appLogger.Infof("Server starting on %s", srv.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, srv, appLogger)
	modelServer.Close()
	if err != nil {
		appLogger.Fatalf("Server failed: %v", err)
	}
	appLogger.Info("Server stopped")
}

const shutdownTimeout = 10 * time.Second

// serve runs srv until it fails or ctx is done, then drains in-flight
// requests before returning.
func serve(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
