package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/techdispatch/backend/internal/apperr"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/models"
)

type SlotOption struct {
	Slot  string `json:"slot"`
	Label string `json:"label"`
}

type GenerateResult struct {
	Date    string `json:"date"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}

type Slots struct {
	Store  db.Store
	Logger zerolog.Logger
}

// AvailableSlots lists the windows in which at least one technician of city
// is still free on date, in clock order, without revealing which technician.
func (s *Slots) AvailableSlots(ctx context.Context, city string, date time.Time) ([]SlotOption, error) {
	var open []string
	err := s.Store.View(ctx, func(q db.Queries) error {
		var err error
		open, err = q.ListOpenWindows(ctx, city, date)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list available slots")
	}

	has := make(map[string]bool, len(open))
	for _, code := range open {
		has[code] = true
	}
	out := []SlotOption{}
	for _, code := range models.SlotOrder {
		if !has[code] {
			continue
		}
		label, _ := models.SlotLabel(code)
		out = append(out, SlotOption{Slot: code, Label: label})
	}
	return out, nil
}

// Generate creates the standard windows on date for every active
// technician. Existing slots are left untouched and counted as skipped.
func (s *Slots) Generate(ctx context.Context, date time.Time) (GenerateResult, error) {
	res := GenerateResult{Date: date.Format(models.DateLayout)}
	err := s.Store.Atomic(ctx, "", func(q db.Queries) error {
		techs, err := q.ListTechnicians(ctx, "")
		if err != nil {
			return err
		}
		var slots []models.AvailabilitySlot
		for _, t := range techs {
			if !t.IsActive {
				continue
			}
			for _, code := range models.SlotOrder {
				slots = append(slots, models.AvailabilitySlot{TechnicianID: t.ID, Date: date, Slot: code})
			}
		}
		res.Created, res.Skipped, err = q.CreateSlots(ctx, slots)
		return err
	})
	if err != nil {
		return GenerateResult{}, apperr.Wrap(err, apperr.CodeInternal, "failed to generate slots")
	}
	s.Logger.Info().Str("date", res.Date).Int("created", res.Created).Int("skipped", res.Skipped).Msg("slots generated")
	return res, nil
}

// Technicians lists technicians, optionally for one city.
func (s *Slots) Technicians(ctx context.Context, city string) ([]models.Technician, error) {
	var techs []models.Technician
	err := s.Store.View(ctx, func(q db.Queries) error {
		var err error
		techs, err = q.ListTechnicians(ctx, city)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list technicians")
	}
	if techs == nil {
		techs = []models.Technician{}
	}
	return techs, nil
}

// ImportTechnicians stores a batch of technicians in one unit of work.
func (s *Slots) ImportTechnicians(ctx context.Context, techs []models.Technician) (int64, error) {
	var n int64
	err := s.Store.Atomic(ctx, "", func(q db.Queries) error {
		var err error
		n, err = q.CreateTechnicians(ctx, techs)
		return err
	})
	if errors.Is(err, db.ErrConflict) {
		return 0, apperr.Wrap(err, apperr.CodeInvalidField, "technician id already exists")
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "failed to import technicians")
	}
	s.Logger.Info().Int64("count", n).Msg("technicians imported")
	return n, nil
}
