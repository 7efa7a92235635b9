// Command optimize-day applies reassignment optimization to every city with
// assigned bookings on a date and prints the per-city summary.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/techdispatch/backend/internal/app"
	"github.com/techdispatch/backend/internal/config"
	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/service"
)

func main() {
	fs := pflag.NewFlagSet("optimize-day", pflag.ExitOnError)
	dateFlag := fs.String("date", time.Now().UTC().Format(models.DateLayout), "day to optimize (YYYY-MM-DD)")
	city := fs.String("city", "", "only optimize this city")
	concurrency := fs.Int("concurrency", 4, "cities optimized in parallel")
	fs.String("database-url", "", "overrides DATABASE_URL")
	fs.String("log-level", "", "overrides LOG_LEVEL")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	_ = v.BindPFlag("DATABASE_URL", fs.Lookup("database-url"))
	_ = v.BindPFlag("LOG_LEVEL", fs.Lookup("log-level"))
	cfg, err := config.LoadWith(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.Logger(cfg, "optimize-day")

	date, err := models.ParseDate(*dateFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --date %q: use YYYY-MM-DD\n", *dateFlag)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	orch := service.NewOrchestrator(store, locker, logger)
	summary, err := orch.OptimizeDay(ctx, date, *city, *concurrency)
	if err != nil {
		logger.Fatal().Err(err).Msg("optimize day failed")
	}

	failed := printSummary(os.Stdout, summary)
	if failed > 0 {
		os.Exit(1)
	}
}

func printSummary(out io.Writer, s service.DaySummary) int {
	if len(s.Cities) == 0 {
		fmt.Fprintf(out, "No assigned bookings on %s\n", s.Date)
		return 0
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CITY\tRUN\tBEFORE KM\tAFTER KM\tSAVED KM\tGROUPS")
	failed := 0
	for _, c := range s.Cities {
		if c.Run == nil {
			failed++
			fmt.Fprintf(w, "%s\tERROR\t-\t-\t-\t%s\n", c.City, c.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%d\n",
			c.City, c.Run.ID, c.Run.BeforeTotalKm, c.Run.AfterTotalKm, c.Run.DistanceSavedKm, c.Run.GroupsOptimized)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\n%s: %d runs, %.2f km saved, %d groups optimized\n", s.Date, s.Runs, s.TotalSavedKm, s.TotalGroups)
	return failed
}
