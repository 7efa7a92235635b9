// Command generate-slots creates the standard windows for every active
// technician on a date. Re-running it is harmless.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/techdispatch/backend/internal/app"
	"github.com/techdispatch/backend/internal/config"
	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/service"
)

func main() {
	fs := pflag.NewFlagSet("generate-slots", pflag.ExitOnError)
	dateFlag := fs.String("date", time.Now().UTC().Format(models.DateLayout), "day to generate (YYYY-MM-DD)")
	days := fs.Int("days", 1, "number of consecutive days starting at --date")
	fs.String("database-url", "", "overrides DATABASE_URL")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	_ = v.BindPFlag("DATABASE_URL", fs.Lookup("database-url"))
	cfg, err := config.LoadWith(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.Logger(cfg, "generate-slots")

	start, err := models.ParseDate(*dateFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --date %q: use YYYY-MM-DD\n", *dateFlag)
		os.Exit(2)
	}

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	slots := &service.Slots{Store: store, Logger: logger}
	for i := 0; i < max(*days, 1); i++ {
		res, err := slots.Generate(ctx, start.AddDate(0, 0, i))
		if err != nil {
			logger.Fatal().Err(err).Msg("generate slots failed")
		}
		fmt.Printf("%s: created %d, skipped %d\n", res.Date, res.Created, res.Skipped)
	}
}
