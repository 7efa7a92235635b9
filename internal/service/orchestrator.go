package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/techdispatch/backend/internal/apperr"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/lock"
	"github.com/techdispatch/backend/internal/metrics"
	"github.com/techdispatch/backend/internal/models"
)

type AssignmentView struct {
	BookingID    string  `json:"booking_id"`
	CustomerName string  `json:"customer_name"`
	Slot         string  `json:"slot"`
	TechnicianID string  `json:"technician_id"`
	TechName     string  `json:"tech_name"`
	DistanceKm   float64 `json:"distance_km"`
}

type StateSummary struct {
	TotalKm       float64            `json:"total_km"`
	PerSlot       map[string]float64 `json:"per_slot"`
	PerTech       map[string]float64 `json:"per_tech"`
	PerTechRoutes map[string]float64 `json:"per_tech_routes"`
	Assignments   []AssignmentView   `json:"assignments"`
}

type Change struct {
	BookingID       string  `json:"booking_id"`
	Slot            string  `json:"slot"`
	CustomerName    string  `json:"customer_name"`
	CustomerPincode string  `json:"customer_pincode"`
	OldTechnicianID *string `json:"old_technician_id"`
	OldTechnician   *string `json:"old_technician"`
	NewTechnicianID string  `json:"new_technician_id"`
	NewTechnician   string  `json:"new_technician"`
	OldKm           float64 `json:"old_km"`
	NewKm           float64 `json:"new_km"`
	DeltaKm         float64 `json:"delta_km"`
	AbsDeltaKm      float64 `json:"abs_delta_km"`
	Changed         bool    `json:"changed"`
}

type Report struct {
	City            string        `json:"city"`
	Date            string        `json:"date"`
	Before          StateSummary  `json:"before"`
	After           StateSummary  `json:"after"`
	Changes         []Change      `json:"changes"`
	Groups          []GroupResult `json:"groups"`
	GroupsOptimized int           `json:"groups_optimized"`
	DistanceSavedKm float64       `json:"distance_saved_km"`
}

type Orchestrator struct {
	Store  db.Store
	Locker lock.Locker
	Logger zerolog.Logger
	// SlotOrder is the chronological window order used for routes.
	SlotOrder []string
}

func NewOrchestrator(store db.Store, locker lock.Locker, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{Store: store, Locker: locker, Logger: logger, SlotOrder: models.SlotOrder}
}

// Preview computes the optimal reassignment for city on date without
// writing anything.
func (o *Orchestrator) Preview(ctx context.Context, city string, date time.Time) (Report, error) {
	var report Report
	err := o.Store.View(ctx, func(q db.Queries) error {
		var err error
		report, err = o.buildReport(ctx, q, city, date)
		return err
	})
	if err != nil {
		return Report{}, apperr.Wrap(err, apperr.CodeInternal, "preview failed")
	}
	return report, nil
}

// Apply recomputes the preview against current state and commits it with an
// audit run in one unit of work.
func (o *Orchestrator) Apply(ctx context.Context, city string, date time.Time) (models.AssignmentRun, error) {
	key := db.LockKey(city, date)
	release, err := acquire(ctx, o.Locker, "apply", key)
	if err != nil {
		metrics.OptimizationRuns.WithLabelValues(metrics.Label(city), string(apperr.CodeOf(err))).Inc()
		return models.AssignmentRun{}, err
	}
	defer release()

	var run models.AssignmentRun
	err = o.Store.Atomic(ctx, key, func(q db.Queries) error {
		report, err := o.buildReport(ctx, q, city, date)
		if err != nil {
			return err
		}
		if err := applyChanges(ctx, q, date, report.Changes); err != nil {
			return err
		}

		run = models.AssignmentRun{
			City:            city,
			Date:            date,
			BeforeTotalKm:   report.Before.TotalKm,
			AfterTotalKm:    report.After.TotalKm,
			DistanceSavedKm: report.DistanceSavedKm,
			GroupsOptimized: report.GroupsOptimized,
			Meta: models.RunMeta{
				BeforePerSlot:       report.Before.PerSlot,
				AfterPerSlot:        report.After.PerSlot,
				BeforePerTech:       report.Before.PerTech,
				AfterPerTech:        report.After.PerTech,
				BeforePerTechRoutes: report.Before.PerTechRoutes,
				AfterPerTechRoutes:  report.After.PerTechRoutes,
			},
		}
		if err := q.CreateRun(ctx, &run); err != nil {
			return err
		}

		if len(report.Changes) == 0 {
			return nil
		}
		rows := make([]models.AssignmentChange, 0, len(report.Changes))
		for _, ch := range report.Changes {
			newName := ch.NewTechnician
			rows = append(rows, models.AssignmentChange{
				RunID:           run.ID,
				BookingID:       ch.BookingID,
				Slot:            ch.Slot,
				CustomerName:    ch.CustomerName,
				CustomerPincode: ch.CustomerPincode,
				OldTechnician:   ch.OldTechnician,
				NewTechnician:   &newName,
				OldKm:           ch.OldKm,
				NewKm:           ch.NewKm,
				DeltaKm:         ch.DeltaKm,
				Changed:         ch.Changed,
			})
		}
		return q.CreateChanges(ctx, rows)
	})
	if err != nil {
		metrics.OptimizationRuns.WithLabelValues(metrics.Label(city), string(apperr.CodeInternal)).Inc()
		o.Logger.Error().Err(err).Str("city", city).Str("date", date.Format(models.DateLayout)).Msg("apply optimization failed")
		return models.AssignmentRun{}, apperr.Wrap(err, apperr.CodeInternal, "apply optimization failed")
	}

	metrics.OptimizationRuns.WithLabelValues(metrics.Label(city), "ok").Inc()
	metrics.DistanceSaved.WithLabelValues(metrics.Label(city)).Add(run.DistanceSavedKm)
	metrics.GroupsOptimized.WithLabelValues(metrics.Label(city)).Add(float64(run.GroupsOptimized))
	o.Logger.Info().
		Str("run_id", run.ID).
		Str("city", city).
		Str("date", date.Format(models.DateLayout)).
		Float64("before_km", run.BeforeTotalKm).
		Float64("after_km", run.AfterTotalKm).
		Float64("saved_km", run.DistanceSavedKm).
		Int("groups_optimized", run.GroupsOptimized).
		Msg("optimization applied")
	return run, nil
}

// applyChanges reassigns moved bookings, then settles slot flags per window
// as a net effect: technicians that no longer hold a booking in a window are
// released before newly used technicians are booked.
func applyChanges(ctx context.Context, q db.Queries, date time.Time, changes []Change) error {
	oldHolders := map[string]map[string]bool{}
	newHolders := map[string]map[string]bool{}
	for _, ch := range changes {
		if oldHolders[ch.Slot] == nil {
			oldHolders[ch.Slot] = map[string]bool{}
			newHolders[ch.Slot] = map[string]bool{}
		}
		if ch.OldTechnicianID != nil {
			oldHolders[ch.Slot][*ch.OldTechnicianID] = true
		}
		newHolders[ch.Slot][ch.NewTechnicianID] = true

		if !ch.Changed {
			continue
		}
		if ch.OldTechnicianID == nil {
			return errors.New("reassign: booking " + ch.BookingID + " has no current technician")
		}
		if err := q.ReassignBooking(ctx, ch.BookingID, *ch.OldTechnicianID, ch.NewTechnicianID); err != nil {
			return err
		}
	}

	slots := make([]string, 0, len(oldHolders))
	for slot := range oldHolders {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	for _, slot := range slots {
		for _, id := range setDiff(oldHolders[slot], newHolders[slot]) {
			if err := q.ReleaseSlot(ctx, id, date, slot); err != nil {
				return err
			}
		}
		for _, id := range setDiff(newHolders[slot], oldHolders[slot]) {
			if err := q.BookSlot(ctx, id, date, slot); err != nil {
				return err
			}
		}
	}
	return nil
}

func setDiff(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// optimizable reports whether a booking takes part in re-optimization.
func optimizable(b models.Booking) bool {
	return b.Status == models.StatusAssigned && b.TechnicianID != nil && b.Technician != nil && b.Location != nil
}

func newSummary() StateSummary {
	return StateSummary{
		PerSlot:       map[string]float64{},
		PerTech:       map[string]float64{},
		PerTechRoutes: map[string]float64{},
		Assignments:   []AssignmentView{},
	}
}

func (o *Orchestrator) buildReport(ctx context.Context, q db.Queries, city string, date time.Time) (Report, error) {
	report := Report{
		City:    city,
		Date:    date.Format(models.DateLayout),
		Before:  newSummary(),
		After:   newSummary(),
		Changes: []Change{},
		Groups:  []GroupResult{},
	}

	all, err := q.ListDayBookings(ctx, city, date)
	if err != nil {
		return Report{}, err
	}

	groups := map[string][]models.Booking{}
	pinned := map[string]map[string]bool{}
	for _, b := range all {
		if optimizable(b) {
			groups[b.Slot] = append(groups[b.Slot], b)
			continue
		}
		if b.TechnicianID != nil {
			if pinned[b.Slot] == nil {
				pinned[b.Slot] = map[string]bool{}
			}
			pinned[b.Slot][*b.TechnicianID] = true
		}
	}

	slots := make([]string, 0, len(groups))
	for slot := range groups {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	techByID := map[string]models.Technician{}
	beforeVisits := map[string][]Visit{}
	afterVisits := map[string][]Visit{}

	for _, slot := range slots {
		bookings := groups[slot]
		for _, b := range bookings {
			tech := *b.Technician
			techByID[tech.ID] = tech
			beforeVisits[tech.ID] = append(beforeVisits[tech.ID], Visit{Slot: slot, Location: *b.Location})
			if tech.Position == nil {
				continue
			}
			km := pointKm(tech.Position, b.Location)
			report.Before.TotalKm += km
			report.Before.PerSlot[slot] += km
			report.Before.PerTech[tech.Name] += km
			report.Before.Assignments = append(report.Before.Assignments, AssignmentView{
				BookingID: b.ID, CustomerName: b.Name, Slot: slot,
				TechnicianID: tech.ID, TechName: tech.Name, DistanceKm: km,
			})
		}

		booked, err := q.ListBookedTechnicians(ctx, city, date, slot)
		if err != nil {
			return Report{}, err
		}
		candidates := make([]models.Technician, 0, len(booked))
		for _, t := range booked {
			if !pinned[slot][t.ID] {
				candidates = append(candidates, t)
			}
		}

		result, proposal := OptimizeSlotGroup(slot, candidates, bookings)
		report.Groups = append(report.Groups, result)
		if result.Improved {
			report.GroupsOptimized++
		}

		for _, a := range proposal {
			techByID[a.Technician.ID] = a.Technician
			if a.Technician.Position != nil {
				report.After.TotalKm += a.Km
				report.After.PerSlot[slot] += a.Km
				report.After.PerTech[a.Technician.Name] += a.Km
				report.After.Assignments = append(report.After.Assignments, AssignmentView{
					BookingID: a.Booking.ID, CustomerName: a.Booking.Name, Slot: slot,
					TechnicianID: a.Technician.ID, TechName: a.Technician.Name, DistanceKm: a.Km,
				})
			}
			afterVisits[a.Technician.ID] = append(afterVisits[a.Technician.ID], Visit{Slot: slot, Location: *a.Booking.Location})

			old := a.Booking.Technician
			oldID, oldName := old.ID, old.Name
			oldKm := pointKm(old.Position, a.Booking.Location)
			delta := oldKm - a.Km
			abs := delta
			if abs < 0 {
				abs = -abs
			}
			report.Changes = append(report.Changes, Change{
				BookingID:       a.Booking.ID,
				Slot:            slot,
				CustomerName:    a.Booking.Name,
				CustomerPincode: a.Booking.Pincode,
				OldTechnicianID: &oldID,
				OldTechnician:   &oldName,
				NewTechnicianID: a.Technician.ID,
				NewTechnician:   a.Technician.Name,
				OldKm:           oldKm,
				NewKm:           a.Km,
				DeltaKm:         delta,
				AbsDeltaKm:      abs,
				Changed:         oldID != a.Technician.ID,
			})
		}
	}

	o.addRoutes(report.Before, techByID, beforeVisits)
	o.addRoutes(report.After, techByID, afterVisits)

	report.DistanceSavedKm = report.Before.TotalKm - report.After.TotalKm
	return report, nil
}

// addRoutes sums route distance per technician name for technicians that
// appear in the summary's point totals.
func (o *Orchestrator) addRoutes(sum StateSummary, techs map[string]models.Technician, visits map[string][]Visit) {
	ids := make([]string, 0, len(visits))
	for id := range visits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := techs[id]
		if _, ok := sum.PerTech[t.Name]; !ok {
			continue
		}
		sum.PerTechRoutes[t.Name] += RouteDistance(t.Position, visits[id], o.slotOrder())
	}
}

func (o *Orchestrator) slotOrder() []string {
	if len(o.SlotOrder) == 0 {
		return models.SlotOrder
	}
	return o.SlotOrder
}

// acquire takes the city/day lock and maps lock failures to caller-visible codes.
func acquire(ctx context.Context, locker lock.Locker, operation, key string) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	start := time.Now()
	release, err := locker.Acquire(ctx, key)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, lock.ErrTimeout) {
			outcome = "timeout"
		}
	}
	metrics.LockWait.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, apperr.Wrap(err, apperr.CodeLockTimeout, "another update for this city and date is in progress, retry shortly")
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to acquire lock")
	}
	return release, nil
}
