package db

import (
	"context"
	"errors"
	"time"

	"github.com/techdispatch/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrSlotTaken = errors.New("slot already booked")
	ErrConflict  = errors.New("concurrent modification")
)

// Queries is the read/write surface shared by every backend. It is bound
// either to a connection pool (View) or to one transaction (Atomic).
type Queries interface {
	ListTechnicians(ctx context.Context, city string) ([]models.Technician, error)
	CreateTechnicians(ctx context.Context, techs []models.Technician) (int64, error)
	SetTechnicianPosition(ctx context.Context, technicianID string, p models.Point) error

	// ListFreeSlots returns unbooked slots of active technicians in city,
	// ordered by technician name then technician id.
	ListFreeSlots(ctx context.Context, city string, date time.Time, slot string) ([]models.SlotCandidate, error)
	ListOpenWindows(ctx context.Context, city string, date time.Time) ([]string, error)
	ClaimSlot(ctx context.Context, slotID string) error
	CreateSlots(ctx context.Context, slots []models.AvailabilitySlot) (created, skipped int, err error)
	ListBookedTechnicians(ctx context.Context, city string, date time.Time, slot string) ([]models.Technician, error)
	ReleaseSlot(ctx context.Context, technicianID string, date time.Time, slot string) error
	BookSlot(ctx context.Context, technicianID string, date time.Time, slot string) error

	CreateBooking(ctx context.Context, b *models.Booking) error
	// ListDayBookings returns every booking of city on date with its technician loaded.
	ListDayBookings(ctx context.Context, city string, date time.Time) ([]models.Booking, error)
	// ReassignBooking moves a booking from one technician to another and fails
	// with ErrConflict when the booking no longer belongs to from.
	ReassignBooking(ctx context.Context, bookingID, from, to string) error
	// ListAssignedCities lists cities with assigned, geocoded bookings. A nil
	// date matches every day.
	ListAssignedCities(ctx context.Context, date *time.Time) ([]string, error)

	CreateRun(ctx context.Context, run *models.AssignmentRun) error
	CreateChanges(ctx context.Context, changes []models.AssignmentChange) error
	ListRuns(ctx context.Context, city string, date *time.Time, limit int) ([]models.AssignmentRun, error)
	GetRun(ctx context.Context, id string) (models.AssignmentRun, error)
	ListChanges(ctx context.Context, runID string) ([]models.AssignmentChange, error)
}

// Store opens units of work. Atomic serializes on key (city|date) for the
// lifetime of the unit and commits only when fn returns nil.
type Store interface {
	View(ctx context.Context, fn func(q Queries) error) error
	Atomic(ctx context.Context, key string, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close()
}

func LockKey(city string, date time.Time) string {
	return city + "|" + date.Format(models.DateLayout)
}
