package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/chapterbudget/internal/api"
	"github.com/punchamoorthee/chapterbudget/internal/config"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logrus.Fatal(err)
	}
	log := logger.WithField("env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Layers
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("unable to open store")
	}
	defer st.Close()

	handler := api.NewHandler(st, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{"port": cfg.Port, "store": cfg.StoreDriver}).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using the in-memory store; data is lost on exit")
		return store.NewMemory(), nil
	}

	pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		log.Info("schema migrated")
	}
	return pg, nil
}
