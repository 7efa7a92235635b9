package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/techdispatch/backend/internal/models"
)

// Memory is an in-process Store. Atomic runs against a copy of the state
// and swaps it in only when fn succeeds, which gives tests real rollback.
type Memory struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	techs    []models.Technician
	slots    []models.AvailabilitySlot
	bookings []models.Booking
	runs     []models.AssignmentRun
	changes  []models.AssignmentChange
}

func NewMemory() *Memory {
	return &Memory{st: &memState{}}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) View(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

// Atomic holds the store-wide mutex for the whole unit, so key is implied.
func (m *Memory) Atomic(ctx context.Context, _ string, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.st = work
	return nil
}

// Pointer fields (positions, technician ids) are never mutated in place,
// so a shallow copy of each slice is enough.
func (s *memState) clone() *memState {
	return &memState{
		techs:    append([]models.Technician(nil), s.techs...),
		slots:    append([]models.AvailabilitySlot(nil), s.slots...),
		bookings: append([]models.Booking(nil), s.bookings...),
		runs:     append([]models.AssignmentRun(nil), s.runs...),
		changes:  append([]models.AssignmentChange(nil), s.changes...),
	}
}

func (s *memState) tech(id string) (models.Technician, bool) {
	for _, t := range s.techs {
		if t.ID == id {
			return t, true
		}
	}
	return models.Technician{}, false
}

func sortTechnicians(techs []models.Technician) {
	sort.SliceStable(techs, func(i, j int) bool {
		if techs[i].Name != techs[j].Name {
			return techs[i].Name < techs[j].Name
		}
		return techs[i].ID < techs[j].ID
	})
}

func (s *memState) ListTechnicians(_ context.Context, city string) ([]models.Technician, error) {
	var out []models.Technician
	for _, t := range s.techs {
		if city == "" || t.City == city {
			out = append(out, t)
		}
	}
	sortTechnicians(out)
	return out, nil
}

func (s *memState) CreateTechnicians(_ context.Context, techs []models.Technician) (int64, error) {
	batch := make(map[string]bool, len(techs))
	for i := range techs {
		if techs[i].ID == "" {
			techs[i].ID = uuid.NewString()
		}
		if _, ok := s.tech(techs[i].ID); ok || batch[techs[i].ID] {
			return 0, ErrConflict
		}
		batch[techs[i].ID] = true
	}
	s.techs = append(s.techs, techs...)
	return int64(len(techs)), nil
}

func (s *memState) SetTechnicianPosition(_ context.Context, technicianID string, p models.Point) error {
	for i := range s.techs {
		if s.techs[i].ID == technicianID {
			pos := p
			s.techs[i].Position = &pos
			return nil
		}
	}
	return ErrNotFound
}

func (s *memState) ListFreeSlots(_ context.Context, city string, date time.Time, slot string) ([]models.SlotCandidate, error) {
	var out []models.SlotCandidate
	for _, sl := range s.slots {
		if sl.IsBooked || sl.Slot != slot || !models.SameDay(sl.Date, date) {
			continue
		}
		t, ok := s.tech(sl.TechnicianID)
		if !ok || t.City != city || !t.IsActive {
			continue
		}
		out = append(out, models.SlotCandidate{Slot: sl, Technician: t})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Technician, out[j].Technician
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *memState) ListOpenWindows(_ context.Context, city string, date time.Time) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, sl := range s.slots {
		if sl.IsBooked || !models.SameDay(sl.Date, date) || seen[sl.Slot] {
			continue
		}
		t, ok := s.tech(sl.TechnicianID)
		if !ok || t.City != city || !t.IsActive {
			continue
		}
		seen[sl.Slot] = true
		out = append(out, sl.Slot)
	}
	return out, nil
}

func (s *memState) ClaimSlot(_ context.Context, slotID string) error {
	for i := range s.slots {
		if s.slots[i].ID != slotID {
			continue
		}
		if s.slots[i].IsBooked {
			return ErrSlotTaken
		}
		s.slots[i].IsBooked = true
		return nil
	}
	return ErrSlotTaken
}

func (s *memState) findSlot(technicianID string, date time.Time, slot string) int {
	for i, sl := range s.slots {
		if sl.TechnicianID == technicianID && sl.Slot == slot && models.SameDay(sl.Date, date) {
			return i
		}
	}
	return -1
}

func (s *memState) CreateSlots(_ context.Context, slots []models.AvailabilitySlot) (int, int, error) {
	created, skipped := 0, 0
	for i := range slots {
		if s.findSlot(slots[i].TechnicianID, slots[i].Date, slots[i].Slot) >= 0 {
			skipped++
			continue
		}
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		s.slots = append(s.slots, slots[i])
		created++
	}
	return created, skipped, nil
}

func (s *memState) ListBookedTechnicians(_ context.Context, city string, date time.Time, slot string) ([]models.Technician, error) {
	seen := map[string]bool{}
	var out []models.Technician
	for _, sl := range s.slots {
		if !sl.IsBooked || sl.Slot != slot || !models.SameDay(sl.Date, date) || seen[sl.TechnicianID] {
			continue
		}
		t, ok := s.tech(sl.TechnicianID)
		if !ok || t.City != city {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	sortTechnicians(out)
	return out, nil
}

func (s *memState) ReleaseSlot(_ context.Context, technicianID string, date time.Time, slot string) error {
	if i := s.findSlot(technicianID, date, slot); i >= 0 {
		s.slots[i].IsBooked = false
	}
	return nil
}

func (s *memState) BookSlot(_ context.Context, technicianID string, date time.Time, slot string) error {
	i := s.findSlot(technicianID, date, slot)
	if i < 0 {
		return ErrNotFound
	}
	s.slots[i].IsBooked = true
	return nil
}

func (s *memState) CreateBooking(_ context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = b.CreatedAt
	stored := *b
	stored.Technician = nil
	s.bookings = append(s.bookings, stored)
	return nil
}

func (s *memState) ListDayBookings(_ context.Context, city string, date time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range s.bookings {
		if b.City != city || !models.SameDay(b.Date, date) {
			continue
		}
		if b.TechnicianID != nil {
			if t, ok := s.tech(*b.TechnicianID); ok {
				tech := t
				b.Technician = &tech
			}
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) ReassignBooking(_ context.Context, bookingID, from, to string) error {
	for i := range s.bookings {
		b := s.bookings[i]
		if b.ID != bookingID {
			continue
		}
		if b.TechnicianID == nil || *b.TechnicianID != from {
			return ErrConflict
		}
		id := to
		s.bookings[i].TechnicianID = &id
		s.bookings[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return ErrConflict
}

func (s *memState) ListAssignedCities(_ context.Context, date *time.Time) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, b := range s.bookings {
		if b.Status != models.StatusAssigned || b.TechnicianID == nil || b.Location == nil {
			continue
		}
		if date != nil && !models.SameDay(b.Date, *date) {
			continue
		}
		if !seen[b.City] {
			seen[b.City] = true
			out = append(out, b.City)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memState) CreateRun(_ context.Context, run *models.AssignmentRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.RunAt.IsZero() {
		run.RunAt = time.Now().UTC()
	}
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memState) CreateChanges(_ context.Context, changes []models.AssignmentChange) error {
	for i := range changes {
		if changes[i].ID == "" {
			changes[i].ID = uuid.NewString()
		}
	}
	s.changes = append(s.changes, changes...)
	return nil
}

func (s *memState) ListRuns(_ context.Context, city string, date *time.Time, limit int) ([]models.AssignmentRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.AssignmentRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		r := s.runs[i]
		if city != "" && r.City != city {
			continue
		}
		if date != nil && !models.SameDay(r.Date, *date) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RunAt.After(out[j].RunAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memState) GetRun(_ context.Context, id string) (models.AssignmentRun, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return models.AssignmentRun{}, ErrNotFound
}

func (s *memState) ListChanges(_ context.Context, runID string) ([]models.AssignmentChange, error) {
	var out []models.AssignmentChange
	for _, c := range s.changes {
		if c.RunID == runID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].CustomerName < out[j].CustomerName
	})
	return out, nil
}
