package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/techdispatch/backend/internal/app"
	"github.com/techdispatch/backend/internal/config"
	httpapi "github.com/techdispatch/backend/internal/http"
	"github.com/techdispatch/backend/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := config.Logger(cfg, "techdispatch-api")

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	locker, closeLocker, err := app.NewLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up lock")
	}
	defer closeLocker()

	geocoder, err := app.NewGeocoder(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up geocoder")
	}

	metrics.RegisterDefault()
	var handler http.Handler = httpapi.Router(cfg, store, geocoder, locker, logger)
	if cfg.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, cfg.RequestTimeout, `{"error":{"code":"TIMEOUT","message":"request timed out"}}`)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
