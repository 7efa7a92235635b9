package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/lock"
	"github.com/techdispatch/backend/internal/models"
)

var day = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func pt(lat, lng float64) *models.Point {
	return &models.Point{Lat: lat, Lng: lng}
}

func newOrchestrator(store db.Store) *Orchestrator {
	return NewOrchestrator(store, lock.NewLocal(time.Second), zerolog.Nop())
}

// seedTech stores a technician with free slots in every window on day.
func seedTech(t *testing.T, m db.Store, id, name, city string, pos *models.Point) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.Atomic(ctx, "", func(q db.Queries) error {
		if _, err := q.CreateTechnicians(ctx, []models.Technician{{ID: id, Name: name, City: city, Position: pos, IsActive: true}}); err != nil {
			return err
		}
		var slots []models.AvailabilitySlot
		for _, code := range models.SlotOrder {
			slots = append(slots, models.AvailabilitySlot{TechnicianID: id, Date: day, Slot: code})
		}
		_, _, err := q.CreateSlots(ctx, slots)
		return err
	}))
}

// seedBooking stores a booking held by techID and marks that slot booked.
func seedBooking(t *testing.T, m db.Store, id, customer, city, slot, techID, status string, loc *models.Point) {
	t.Helper()
	ctx := context.Background()
	tech := techID
	require.NoError(t, m.Atomic(ctx, "", func(q db.Queries) error {
		b := &models.Booking{
			ID: id, Name: customer, Phone: "9000000000", City: city, Address: "addr", Pincode: "400001",
			Location: loc, Date: day, Slot: slot, TechnicianID: &tech, Status: status,
		}
		if err := q.CreateBooking(ctx, b); err != nil {
			return err
		}
		return q.BookSlot(ctx, techID, day, slot)
	}))
}

type snapshot struct {
	bookings []models.Booking
	techs    []models.Technician
	booked   map[string][]models.Technician
	open     []string
	runs     []models.AssignmentRun
}

func takeSnapshot(t *testing.T, m db.Store, city string) snapshot {
	t.Helper()
	ctx := context.Background()
	s := snapshot{booked: map[string][]models.Technician{}}
	require.NoError(t, m.View(ctx, func(q db.Queries) error {
		var err error
		if s.bookings, err = q.ListDayBookings(ctx, city, day); err != nil {
			return err
		}
		if s.techs, err = q.ListTechnicians(ctx, city); err != nil {
			return err
		}
		if s.open, err = q.ListOpenWindows(ctx, city, day); err != nil {
			return err
		}
		if s.runs, err = q.ListRuns(ctx, city, nil, 0); err != nil {
			return err
		}
		for _, code := range models.SlotOrder {
			if s.booked[code], err = q.ListBookedTechnicians(ctx, city, day, code); err != nil {
				return err
			}
		}
		return nil
	}))
	return s
}

func techOf(s snapshot, bookingID string) string {
	for _, b := range s.bookings {
		if b.ID == bookingID && b.TechnicianID != nil {
			return *b.TechnicianID
		}
	}
	return ""
}

func bookedIDs(s snapshot, slot string) []string {
	var ids []string
	for _, t := range s.booked[slot] {
		ids = append(ids, t.ID)
	}
	return ids
}
