// Package app wires configuration into the store, locker and geocoder shared
// by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/techdispatch/backend/internal/config"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/geocode"
	"github.com/techdispatch/backend/internal/lock"
)

// OpenStore connects to Postgres and, when AUTO_MIGRATE is set, brings the
// schema up to date.
func OpenStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (*db.Postgres, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, "up"); err != nil {
			store.Close()
			return nil, err
		}
		log.Info().Msg("migrations applied")
	}
	return store, nil
}

// NewLocker returns a Redis locker when REDIS_URL is set and an in-process
// one otherwise. The returned close func is never nil.
func NewLocker(ctx context.Context, cfg config.Config, log zerolog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("using in-process lock")
		return lock.NewLocal(cfg.LockWait), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("using redis lock")
	return lock.NewRedis(client, cfg.LockTTL, cfg.LockWait, log), func() { _ = client.Close() }, nil
}

// NewGeocoder selects the postal code lookup named by GEOCODER.
func NewGeocoder(cfg config.Config, log zerolog.Logger) (geocode.Lookup, error) {
	switch cfg.Geocoder {
	case "", "static":
		table, err := geocode.LoadTable(cfg.PincodeTablePath)
		if err != nil {
			return nil, err
		}
		log.Info().Int("codes", table.Len()).Msg("using static pincode table")
		return table, nil
	case "nominatim":
		log.Info().Str("url", cfg.NominatimURL).Msg("using nominatim geocoder")
		return &geocode.Nominatim{
			BaseURL:     cfg.NominatimURL,
			UserAgent:   "techdispatch-backend/1.0",
			Country:     cfg.NominatimCountry,
			MinInterval: time.Second,
			Client:      &http.Client{Timeout: 10 * time.Second},
		}, nil
	default:
		return nil, fmt.Errorf("unknown GEOCODER %q", cfg.Geocoder)
	}
}
