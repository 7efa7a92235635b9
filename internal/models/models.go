package models

import (
	"math"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a calendar day in DateLayout as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func SameDay(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}

const (
	StatusPending   = "pending"
	StatusAssigned  = "assigned"
	StatusCompleted = "completed"
)

// SlotOrder lists the standard two-hour windows in clock order.
var SlotOrder = []string{"09_11", "11_13", "13_15", "15_17", "17_19"}

var slotLabels = map[string]string{
	"09_11": "09:00–11:00",
	"11_13": "11:00–13:00",
	"13_15": "13:00–15:00",
	"15_17": "15:00–17:00",
	"17_19": "17:00–19:00",
}

func SlotLabel(code string) (string, bool) {
	label, ok := slotLabels[code]
	return label, ok
}

func IsValidSlot(code string) bool {
	_, ok := slotLabels[code]
	return ok
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a finite coordinate on the globe.
func (p Point) Valid() bool {
	return ValidCoordinate(p.Lat, p.Lng)
}

func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

type Technician struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Position *Point `json:"position"`
	IsActive bool   `json:"is_active"`
}

type AvailabilitySlot struct {
	ID           string    `json:"id"`
	TechnicianID string    `json:"technician_id"`
	Date         time.Time `json:"date"`
	Slot         string    `json:"slot"`
	IsBooked     bool      `json:"is_booked"`
}

// SlotCandidate is a free slot joined with its technician.
type SlotCandidate struct {
	Slot       AvailabilitySlot
	Technician Technician
}

type Booking struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone"`
	City         string      `json:"city"`
	Address      string      `json:"address"`
	Pincode      string      `json:"pincode"`
	Location     *Point      `json:"location"`
	Date         time.Time   `json:"date"`
	Slot         string      `json:"slot"`
	TechnicianID *string     `json:"technician_id"`
	Technician   *Technician `json:"technician,omitempty"`
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type RunMeta struct {
	BeforePerSlot       map[string]float64 `json:"before_per_slot"`
	AfterPerSlot        map[string]float64 `json:"after_per_slot"`
	BeforePerTech       map[string]float64 `json:"before_per_tech"`
	AfterPerTech        map[string]float64 `json:"after_per_tech"`
	BeforePerTechRoutes map[string]float64 `json:"before_per_tech_routes"`
	AfterPerTechRoutes  map[string]float64 `json:"after_per_tech_routes"`
}

type AssignmentRun struct {
	ID              string    `json:"id"`
	City            string    `json:"city"`
	Date            time.Time `json:"date"`
	RunAt           time.Time `json:"run_at"`
	BeforeTotalKm   float64   `json:"before_total_km"`
	AfterTotalKm    float64   `json:"after_total_km"`
	DistanceSavedKm float64   `json:"distance_saved_km"`
	GroupsOptimized int       `json:"groups_optimized"`
	Meta            RunMeta   `json:"meta"`
}

type AssignmentChange struct {
	ID              string  `json:"id"`
	RunID           string  `json:"run_id"`
	BookingID       string  `json:"booking_id"`
	Slot            string  `json:"slot"`
	CustomerName    string  `json:"customer_name"`
	CustomerPincode string  `json:"customer_pincode"`
	OldTechnician   *string `json:"old_technician"`
	NewTechnician   *string `json:"new_technician"`
	OldKm           float64 `json:"old_km"`
	NewKm           float64 `json:"new_km"`
	DeltaKm         float64 `json:"delta_km"`
	Changed         bool    `json:"changed"`
}
