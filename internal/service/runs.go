package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/techdispatch/backend/internal/apperr"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/models"
)

type RunDetail struct {
	Run     models.AssignmentRun      `json:"run"`
	Changes []models.AssignmentChange `json:"changes"`
}

func (o *Orchestrator) Runs(ctx context.Context, city string, date *time.Time, limit int) ([]models.AssignmentRun, error) {
	var runs []models.AssignmentRun
	err := o.Store.View(ctx, func(q db.Queries) error {
		var err error
		runs, err = q.ListRuns(ctx, city, date, limit)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list runs")
	}
	if runs == nil {
		runs = []models.AssignmentRun{}
	}
	return runs, nil
}

func (o *Orchestrator) Run(ctx context.Context, id string) (RunDetail, error) {
	var detail RunDetail
	err := o.Store.View(ctx, func(q db.Queries) error {
		run, err := q.GetRun(ctx, id)
		if err != nil {
			return err
		}
		changes, err := q.ListChanges(ctx, id)
		if err != nil {
			return err
		}
		if changes == nil {
			changes = []models.AssignmentChange{}
		}
		detail = RunDetail{Run: run, Changes: changes}
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return RunDetail{}, apperr.New(apperr.CodeNotFound, "Run not found")
	}
	if err != nil {
		return RunDetail{}, apperr.Wrap(err, apperr.CodeInternal, "failed to load run")
	}
	return detail, nil
}

type CityRun struct {
	City  string                `json:"city"`
	Run   *models.AssignmentRun `json:"run,omitempty"`
	Error string                `json:"error,omitempty"`
}

type DaySummary struct {
	Date         string    `json:"date"`
	Cities       []CityRun `json:"cities"`
	TotalSavedKm float64   `json:"total_saved_km"`
	TotalGroups  int       `json:"total_groups"`
	Runs         int       `json:"runs"`
}

// OptimizeDay applies optimization to every city with assigned bookings on
// date, or only to city when given. A failing city is reported in its
// CityRun and does not stop the others.
func (o *Orchestrator) OptimizeDay(ctx context.Context, date time.Time, city string, concurrency int) (DaySummary, error) {
	summary := DaySummary{Date: date.Format(models.DateLayout), Cities: []CityRun{}}

	var cities []string
	err := o.Store.View(ctx, func(q db.Queries) error {
		var err error
		cities, err = q.ListAssignedCities(ctx, &date)
		return err
	})
	if err != nil {
		return summary, apperr.Wrap(err, apperr.CodeInternal, "failed to list cities")
	}
	if city != "" {
		filtered := cities[:0]
		for _, c := range cities {
			if c == city {
				filtered = append(filtered, c)
			}
		}
		cities = filtered
	}
	if len(cities) == 0 {
		return summary, nil
	}

	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]CityRun, len(cities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range cities {
		i, c := i, c
		g.Go(func() error {
			run, err := o.Apply(gctx, c, date)
			if err != nil {
				results[i] = CityRun{City: c, Error: err.Error()}
				return nil
			}
			results[i] = CityRun{City: c, Run: &run}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].City < results[j].City })
	for _, r := range results {
		if r.Run != nil {
			summary.Runs++
			summary.TotalSavedKm += r.Run.DistanceSavedKm
			summary.TotalGroups += r.Run.GroupsOptimized
		}
	}
	summary.Cities = results
	return summary, nil
}

type TechnicianSchedule struct {
	Before []AssignmentView `json:"before"`
	After  []AssignmentView `json:"after"`
}

type Schedule struct {
	City         string                         `json:"city"`
	Date         string                         `json:"date"`
	Cities       []string                       `json:"cities"`
	Preview      *Report                        `json:"preview"`
	PreviewError string                         `json:"preview_error,omitempty"`
	Technicians  map[string]*TechnicianSchedule `json:"technician_assignments"`
}

const DefaultScheduleCity = "Mumbai"

// Schedule gathers dashboard data for one city and day. An empty city
// falls back to the first city with assigned bookings, and an empty or
// unparsable date falls back to today.
func (o *Orchestrator) Schedule(ctx context.Context, city, date string, today time.Time) (Schedule, error) {
	var cities []string
	err := o.Store.View(ctx, func(q db.Queries) error {
		var err error
		cities, err = q.ListAssignedCities(ctx, nil)
		return err
	})
	if err != nil {
		return Schedule{}, apperr.Wrap(err, apperr.CodeInternal, "failed to list cities")
	}
	if cities == nil {
		cities = []string{}
	}
	if city == "" {
		city = DefaultScheduleCity
		if len(cities) > 0 {
			city = cities[0]
		}
	}
	day, err := models.ParseDate(date)
	if err != nil {
		day, _ = models.ParseDate(today.Format(models.DateLayout))
	}

	out := Schedule{
		City:        city,
		Date:        day.Format(models.DateLayout),
		Cities:      cities,
		Technicians: map[string]*TechnicianSchedule{},
	}
	report, err := o.Preview(ctx, city, day)
	if err != nil {
		o.Logger.Error().Err(err).Str("city", city).Str("date", out.Date).Msg("schedule preview failed")
		out.PreviewError = apperr.As(err).Message
		return out, nil
	}
	out.Preview = &report

	entry := func(name string) *TechnicianSchedule {
		ts, ok := out.Technicians[name]
		if !ok {
			ts = &TechnicianSchedule{Before: []AssignmentView{}, After: []AssignmentView{}}
			out.Technicians[name] = ts
		}
		return ts
	}
	for _, a := range report.Before.Assignments {
		ts := entry(a.TechName)
		ts.Before = append(ts.Before, a)
	}
	for _, a := range report.After.Assignments {
		ts := entry(a.TechName)
		ts.After = append(ts.After, a)
	}
	return out, nil
}
