package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/config"
	"github.com/yumyai/varquery/pkg/db"
	"github.com/yumyai/varquery/pkg/handler"
	"github.com/yumyai/varquery/pkg/middle"
)

func main() {

	VERSION := "0.1.0"

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Establish logger
	if err := logger.InitLogger(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync() // Make sure that the buffered is flushed.

	logger.Info("Start:", zap.String("Version", VERSION))
	logger.Info("Study catalogue", zap.String("path", cfg.StudiesFile), zap.Int("studies", len(cfg.Studies)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	genotypes, err := db.OpenGenotypeDB(ctx, cfg, db.DefaultRegistry)
	if err != nil {
		logger.Fatal("Error opening studies", zap.Error(err))
	}
	defer genotypes.Close()

	dbctx := &handler.DBContext{Genotypes: genotypes}
	mux := handler.NewRouter(dbctx)

	// Apply middleware
	httpLog := logger.Named("http")
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: middle.Chain(mux, middle.RequestIDMiddleware(httpLog), middle.LoggingMiddleware(httpLog)),
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			logger.Warn("Shutdown", zap.Error(err))
		}
	}()

	logger.Info("Server starting", zap.String("addr", cfg.Addr))
	httpErr := server.ListenAndServe()
	if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
		logger.Error("Error starting server:", zap.String("error message", httpErr.Error()))
	}
}
