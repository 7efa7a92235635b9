package service

import (
	"github.com/techdispatch/backend/internal/matching"
	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/utils"
)

// ImprovementEpsilonKm is the smallest saving worth reassigning for.
const ImprovementEpsilonKm = 0.01

// Assignment pairs one booking with the technician proposed for it.
type Assignment struct {
	Booking    models.Booking
	Technician models.Technician
	Km         float64
}

type GroupResult struct {
	Slot          string  `json:"slot"`
	Bookings      int     `json:"bookings"`
	Technicians   int     `json:"technicians"`
	OldKm         float64 `json:"old_distance"`
	MatchedKm     float64 `json:"matched_distance"`
	NewKm         float64 `json:"new_distance"`
	ImprovementKm float64 `json:"improvement_km"`
	Improved      bool    `json:"improved"`
	// KeptCurrent is set when the optimal matching was not adopted and the
	// group keeps its current assignment.
	KeptCurrent bool `json:"kept_current"`
}

// OptimizeSlotGroup computes the distance-minimizing one-to-one matching of
// technicians to the bookings of one window. bookings must carry a location
// and their current technician. The proposal is adopted only when it covers
// every booking and saves at least ImprovementEpsilonKm; otherwise the
// current assignment is returned unchanged, so NewKm never exceeds OldKm.
func OptimizeSlotGroup(slot string, technicians []models.Technician, bookings []models.Booking) (GroupResult, []Assignment) {
	res := GroupResult{Slot: slot, Bookings: len(bookings), Technicians: len(technicians)}
	if len(bookings) == 0 {
		return res, nil
	}

	current := make([]Assignment, len(bookings))
	for j, b := range bookings {
		a := Assignment{Booking: b}
		if b.Technician != nil {
			a.Technician = *b.Technician
			a.Km = pointKm(b.Technician.Position, b.Location)
		}
		current[j] = a
		res.OldKm += a.Km
	}

	keep := func() (GroupResult, []Assignment) {
		res.NewKm = res.OldKm
		res.ImprovementKm = 0
		res.Improved = false
		res.KeptCurrent = true
		return res, current
	}
	if len(technicians) == 0 {
		return keep()
	}

	cost := matching.Padded(len(technicians), len(bookings), func(i, j int) float64 {
		if technicians[i].Position == nil || bookings[j].Location == nil ||
			!technicians[i].Position.Valid() || !bookings[j].Location.Valid() {
			return matching.Sentinel
		}
		return utils.DistanceKm(*technicians[i].Position, *bookings[j].Location)
	})
	rowToCol, err := matching.Solve(cost)
	if err != nil {
		return keep()
	}

	proposed := make([]Assignment, 0, len(bookings))
	for i, j := range rowToCol {
		if i >= len(technicians) || j >= len(bookings) {
			continue
		}
		if cost[i][j] >= matching.Sentinel {
			continue
		}
		proposed = append(proposed, Assignment{Booking: bookings[j], Technician: technicians[i], Km: cost[i][j]})
		res.MatchedKm += cost[i][j]
	}

	if len(proposed) != len(bookings) || !(res.OldKm-res.MatchedKm >= ImprovementEpsilonKm) {
		return keep()
	}

	// keep booking order stable for callers
	byBooking := make(map[string]Assignment, len(proposed))
	for _, a := range proposed {
		byBooking[a.Booking.ID] = a
	}
	ordered := make([]Assignment, 0, len(bookings))
	for _, b := range bookings {
		ordered = append(ordered, byBooking[b.ID])
	}

	res.NewKm = res.MatchedKm
	res.ImprovementKm = res.OldKm - res.NewKm
	res.Improved = true
	return res, ordered
}

// pointKm counts an unknown or unusable coordinate as 0 km.
func pointKm(from, to *models.Point) float64 {
	if from == nil || to == nil || !from.Valid() || !to.Valid() {
		return 0
	}
	return utils.DistanceKm(*from, *to)
}
