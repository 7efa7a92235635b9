// Command migrate runs goose commands against the embedded schema.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/techdispatch/backend/internal/config"
	"github.com/techdispatch/backend/internal/db"
)

func main() {
	fs := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	cmd := fs.String("cmd", "up", "migration command: up|down|status|version|redo|reset|up-to|down-to")
	version := fs.String("version", "", "target version for up-to and down-to")
	fs.String("database-url", "", "overrides DATABASE_URL")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	_ = v.BindPFlag("DATABASE_URL", fs.Lookup("database-url"))
	cfg, err := config.LoadWith(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.Logger(cfg, "migrate").With().Str("cmd", *cmd).Logger()

	var args []string
	switch *cmd {
	case "up-to", "down-to":
		if *version == "" {
			fmt.Fprintf(os.Stderr, "missing --version for %s\n", *cmd)
			os.Exit(1)
		}
		args = append(args, *version)
	case "up", "down", "status", "version", "redo", "reset":
	default:
		fmt.Fprintln(os.Stderr, "unknown --cmd value:", *cmd)
		os.Exit(1)
	}

	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		os.Exit(1)
	}
	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	logger.Info().Msg("migrate ready")
	if err := store.Migrate(ctx, *cmd, args...); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		store.Close()
		os.Exit(1)
	}
	logger.Info().Msg("migrate done")
}
