package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/techdispatch/backend/internal/apperr"
	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/geocode"
	"github.com/techdispatch/backend/internal/lock"
	"github.com/techdispatch/backend/internal/metrics"
	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/utils"
)

type BookingRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	City    string `json:"city" validate:"required"`
	Address string `json:"address" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
	Date    string `json:"date" validate:"required"`
	Slot    string `json:"slot" validate:"required"`
}

type BookingResult struct {
	Status             string   `json:"status"`
	BookingID          string   `json:"booking_id"`
	AssignedTechnician string   `json:"assigned_technician"`
	TechnicianID       string   `json:"technician_id"`
	DistanceKm         *float64 `json:"distance_km,omitempty"`
}

type Dispatcher struct {
	Store    db.Store
	Geocoder geocode.Lookup
	Locker   lock.Locker
	Logger   zerolog.Logger

	validate *validator.Validate
}

func NewDispatcher(store db.Store, geocoder geocode.Lookup, locker lock.Locker, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{Store: store, Geocoder: geocoder, Locker: locker, Logger: logger, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func (r *BookingRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.City = strings.TrimSpace(r.City)
	r.Address = strings.TrimSpace(r.Address)
	r.Pincode = strings.TrimSpace(r.Pincode)
	r.Date = strings.TrimSpace(r.Date)
	r.Slot = strings.TrimSpace(r.Slot)
}

// CreateBooking assigns the nearest technician with a free slot in the
// requested city, date and window, and books it.
func (d *Dispatcher) CreateBooking(ctx context.Context, req BookingRequest) (BookingResult, error) {
	req.normalize()
	res, err := d.createBooking(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.CodeOf(err))
		d.Logger.Info().Err(err).Str("city", req.City).Str("date", req.Date).Str("slot", req.Slot).Msg("booking rejected")
	} else {
		d.Logger.Info().Str("booking_id", res.BookingID).Str("technician_id", res.TechnicianID).Str("city", req.City).Str("slot", req.Slot).Msg("booking assigned")
	}
	metrics.Bookings.WithLabelValues(metrics.Label(req.City), outcome).Inc()
	return res, err
}

func (d *Dispatcher) createBooking(ctx context.Context, req BookingRequest) (BookingResult, error) {
	if err := d.validateRequest(req); err != nil {
		return BookingResult{}, err
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return BookingResult{}, apperr.New(apperr.CodeBadDate,
			fmt.Sprintf("Invalid date format: %q. Please use YYYY-MM-DD format.", req.Date))
	}
	if !models.IsValidSlot(req.Slot) {
		return BookingResult{}, apperr.New(apperr.CodeBadTimeWindow,
			fmt.Sprintf("Invalid slot: %q. Valid slots are: %s", req.Slot, strings.Join(models.SlotOrder, ", "))).
			WithDetails(map[string]any{"valid_slots": models.SlotOrder})
	}

	location, err := d.Geocoder.Resolve(ctx, req.Pincode)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			return BookingResult{}, apperr.New(apperr.CodePostalNotFound,
				fmt.Sprintf("Pincode %q not found in lookup table", req.Pincode))
		}
		return BookingResult{}, apperr.Wrap(err, apperr.CodeInternal, "geocoding failed")
	}
	if !location.Valid() {
		return BookingResult{}, apperr.New(apperr.CodeInternal, "geocoding returned invalid coordinates")
	}

	key := db.LockKey(req.City, date)
	release, err := acquire(ctx, d.Locker, "dispatch", key)
	if err != nil {
		return BookingResult{}, err
	}
	defer release()

	var result BookingResult
	err = d.Store.Atomic(ctx, key, func(q db.Queries) error {
		candidates, err := q.ListFreeSlots(ctx, req.City, date, req.Slot)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return apperr.New(apperr.CodeNoTechnicianAvailable, "No technicians available")
		}

		chosen, km := Nearest(candidates, location)
		if err := q.ClaimSlot(ctx, chosen.Slot.ID); err != nil {
			if errors.Is(err, db.ErrSlotTaken) {
				return apperr.Wrap(err, apperr.CodeSlotConflict, "Slot was taken concurrently, please retry")
			}
			return err
		}

		techID := chosen.Technician.ID
		loc := location
		booking := models.Booking{
			Name:         req.Name,
			Phone:        req.Phone,
			City:         req.City,
			Address:      req.Address,
			Pincode:      req.Pincode,
			Location:     &loc,
			Date:         date,
			Slot:         req.Slot,
			TechnicianID: &techID,
			Status:       models.StatusAssigned,
		}
		if err := q.CreateBooking(ctx, &booking); err != nil {
			return err
		}
		if err := q.SetTechnicianPosition(ctx, techID, location); err != nil {
			return err
		}

		result = BookingResult{
			Status:             "success",
			BookingID:          booking.ID,
			AssignedTechnician: chosen.Technician.Name,
			TechnicianID:       techID,
		}
		if !math.IsInf(km, 1) {
			result.DistanceKm = &km
		}
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return BookingResult{}, appErr
		}
		return BookingResult{}, apperr.Wrap(err, apperr.CodeInternal, "Error creating booking")
	}
	return result, nil
}

func (d *Dispatcher) validateRequest(req BookingRequest) error {
	v := d.validate
	if v == nil {
		v = newValidator()
	}
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(err, apperr.CodeInvalidField, "invalid request")
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return apperr.New(apperr.CodeInvalidField, "Missing required fields: "+strings.Join(missing, ", ")).
		WithDetails(map[string]any{"missing_fields": missing})
}

// Nearest ranks candidates by distance from the technician's last known
// position to the customer. Technicians without a position rank last;
// ties keep retrieval order. candidates must not be empty.
func Nearest(candidates []models.SlotCandidate, customer models.Point) (models.SlotCandidate, float64) {
	type ranked struct {
		c  models.SlotCandidate
		km float64
	}
	rs := make([]ranked, len(candidates))
	for i, c := range candidates {
		km := math.Inf(1)
		if c.Technician.Position != nil {
			km = utils.DistanceKm(*c.Technician.Position, customer)
		}
		rs[i] = ranked{c: c, km: km}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].km < rs[j].km })
	return rs[0].c, rs[0].km
}
