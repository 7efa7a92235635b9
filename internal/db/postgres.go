package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/utils"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Postgres struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (s *Postgres) Close() {
	s.Pool.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Postgres) View(ctx context.Context, fn func(q Queries) error) error {
	return fn(&pgQueries{q: s.Pool})
}

// Atomic runs fn in one transaction holding a transaction-scoped advisory
// lock derived from key, so dispatch and apply on the same city and day
// serialize across processes.
func (s *Postgres) Atomic(ctx context.Context, key string, fn func(q Queries) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if key != "" {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, utils.AdvisoryLockID(key)); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
	}
	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgQueries struct {
	q querier
}

const technicianColumns = `t.id, t.name, t.city, t.current_lat, t.current_lng, t.is_active`

func scanTechnician(row pgx.Row, extra ...any) (models.Technician, error) {
	var (
		t   models.Technician
		lat *float64
		lng *float64
	)
	dest := append([]any{&t.ID, &t.Name, &t.City, &lat, &lng, &t.IsActive}, extra...)
	if err := row.Scan(dest...); err != nil {
		return t, err
	}
	t.Position = pointOf(lat, lng)
	return t, nil
}

func pointOf(lat, lng *float64) *models.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &models.Point{Lat: *lat, Lng: *lng}
}

func latLng(p *models.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func (p *pgQueries) ListTechnicians(ctx context.Context, city string) ([]models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians t`
	var args []any
	if city != "" {
		args = append(args, city)
		query += ` WHERE t.city = $1`
	}
	query += ` ORDER BY t.name, t.id`

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *pgQueries) CreateTechnicians(ctx context.Context, techs []models.Technician) (int64, error) {
	rows := make([][]any, 0, len(techs))
	for i := range techs {
		if techs[i].ID == "" {
			techs[i].ID = uuid.NewString()
		}
		lat, lng := latLng(techs[i].Position)
		rows = append(rows, []any{techs[i].ID, techs[i].Name, techs[i].City, lat, lng, techs[i].IsActive})
	}
	n, err := p.q.CopyFrom(ctx, pgx.Identifier{"technicians"}, []string{"id", "name", "city", "current_lat", "current_lng", "is_active"}, pgx.CopyFromRows(rows))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, ErrConflict
	}
	return n, err
}

func (p *pgQueries) SetTechnicianPosition(ctx context.Context, technicianID string, pt models.Point) error {
	tag, err := p.q.Exec(ctx, `UPDATE technicians SET current_lat = $1, current_lng = $2 WHERE id = $3`, pt.Lat, pt.Lng, technicianID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgQueries) ListFreeSlots(ctx context.Context, city string, date time.Time, slot string) ([]models.SlotCandidate, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+technicianColumns+`, s.id, s.technician_id, s.date, s.slot, s.is_booked
		FROM availability_slots s
		JOIN technicians t ON t.id = s.technician_id
		WHERE t.city = $1 AND t.is_active AND s.date = $2 AND s.slot = $3 AND NOT s.is_booked
		ORDER BY t.name, t.id
	`, city, date, slot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SlotCandidate
	for rows.Next() {
		var c models.SlotCandidate
		t, err := scanTechnician(rows, &c.Slot.ID, &c.Slot.TechnicianID, &c.Slot.Date, &c.Slot.Slot, &c.Slot.IsBooked)
		if err != nil {
			return nil, err
		}
		c.Technician = t
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *pgQueries) ListOpenWindows(ctx context.Context, city string, date time.Time) ([]string, error) {
	rows, err := p.q.Query(ctx, `
		SELECT DISTINCT s.slot
		FROM availability_slots s
		JOIN technicians t ON t.id = s.technician_id
		WHERE t.city = $1 AND t.is_active AND s.date = $2 AND NOT s.is_booked
	`, city, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (p *pgQueries) ClaimSlot(ctx context.Context, slotID string) error {
	tag, err := p.q.Exec(ctx, `UPDATE availability_slots SET is_booked = TRUE WHERE id = $1 AND NOT is_booked`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

func (p *pgQueries) CreateSlots(ctx context.Context, slots []models.AvailabilitySlot) (int, int, error) {
	created, skipped := 0, 0
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		s := slots[i]
		tag, err := p.q.Exec(ctx, `
			INSERT INTO availability_slots (id, technician_id, date, slot, is_booked)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (technician_id, date, slot) DO NOTHING
		`, s.ID, s.TechnicianID, s.Date, s.Slot, s.IsBooked)
		if err != nil {
			return created, skipped, err
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			created++
		}
	}
	return created, skipped, nil
}

func (p *pgQueries) ListBookedTechnicians(ctx context.Context, city string, date time.Time, slot string) ([]models.Technician, error) {
	rows, err := p.q.Query(ctx, `
		SELECT DISTINCT `+technicianColumns+`
		FROM availability_slots s
		JOIN technicians t ON t.id = s.technician_id
		WHERE t.city = $1 AND s.date = $2 AND s.slot = $3 AND s.is_booked
		ORDER BY t.name, t.id
	`, city, date, slot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *pgQueries) ReleaseSlot(ctx context.Context, technicianID string, date time.Time, slot string) error {
	_, err := p.q.Exec(ctx, `
		UPDATE availability_slots SET is_booked = FALSE
		WHERE technician_id = $1 AND date = $2 AND slot = $3 AND is_booked
	`, technicianID, date, slot)
	return err
}

func (p *pgQueries) BookSlot(ctx context.Context, technicianID string, date time.Time, slot string) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE availability_slots SET is_booked = TRUE
		WHERE technician_id = $1 AND date = $2 AND slot = $3
	`, technicianID, date, slot)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgQueries) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = b.CreatedAt
	lat, lng := latLng(b.Location)
	_, err := p.q.Exec(ctx, `
		INSERT INTO bookings (id, name, phone, city, address, pincode, lat, lng, date, slot, technician_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, b.ID, b.Name, b.Phone, b.City, b.Address, b.Pincode, lat, lng, b.Date, b.Slot, b.TechnicianID, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *pgQueries) ListDayBookings(ctx context.Context, city string, date time.Time) ([]models.Booking, error) {
	rows, err := p.q.Query(ctx, `
		SELECT b.id, b.name, b.phone, b.city, b.address, b.pincode, b.lat, b.lng, b.date, b.slot,
			b.technician_id, b.status, b.created_at, b.updated_at,
			t.id, t.name, t.city, t.current_lat, t.current_lng, t.is_active
		FROM bookings b
		LEFT JOIN technicians t ON t.id = b.technician_id
		WHERE b.city = $1 AND b.date = $2
		ORDER BY b.slot, b.created_at, b.id
	`, city, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		var (
			b                models.Booking
			lat, lng         *float64
			techID, techName *string
			techCity         *string
			techLat, techLng *float64
			techActive       *bool
		)
		if err := rows.Scan(
			&b.ID, &b.Name, &b.Phone, &b.City, &b.Address, &b.Pincode, &lat, &lng, &b.Date, &b.Slot,
			&b.TechnicianID, &b.Status, &b.CreatedAt, &b.UpdatedAt,
			&techID, &techName, &techCity, &techLat, &techLng, &techActive,
		); err != nil {
			return nil, err
		}
		b.Location = pointOf(lat, lng)
		if techID != nil {
			b.Technician = &models.Technician{
				ID:       *techID,
				Name:     derefString(techName),
				City:     derefString(techCity),
				Position: pointOf(techLat, techLng),
				IsActive: techActive != nil && *techActive,
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *pgQueries) ReassignBooking(ctx context.Context, bookingID, from, to string) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE bookings SET technician_id = $3, updated_at = NOW()
		WHERE id = $1 AND technician_id = $2
	`, bookingID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *pgQueries) ListAssignedCities(ctx context.Context, date *time.Time) ([]string, error) {
	query := `SELECT DISTINCT city FROM bookings
		WHERE status = 'assigned' AND technician_id IS NOT NULL AND lat IS NOT NULL AND lng IS NOT NULL`
	var args []any
	if date != nil {
		args = append(args, *date)
		query += ` AND date = $1`
	}
	query += ` ORDER BY city`

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		out = append(out, city)
	}
	return out, rows.Err()
}

func (p *pgQueries) CreateRun(ctx context.Context, run *models.AssignmentRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.RunAt.IsZero() {
		run.RunAt = time.Now().UTC()
	}
	meta, err := json.Marshal(run.Meta)
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	_, err = p.q.Exec(ctx, `
		INSERT INTO assignment_runs (id, city, date, run_at, before_total_km, after_total_km, distance_saved_km, groups_optimized, meta)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, run.ID, run.City, run.Date, run.RunAt, run.BeforeTotalKm, run.AfterTotalKm, run.DistanceSavedKm, run.GroupsOptimized, meta)
	return err
}

func (p *pgQueries) CreateChanges(ctx context.Context, changes []models.AssignmentChange) error {
	rows := make([][]any, 0, len(changes))
	for i := range changes {
		if changes[i].ID == "" {
			changes[i].ID = uuid.NewString()
		}
		c := changes[i]
		rows = append(rows, []any{c.ID, c.RunID, c.BookingID, c.Slot, c.CustomerName, c.CustomerPincode, c.OldTechnician, c.NewTechnician, c.OldKm, c.NewKm, c.DeltaKm, c.Changed})
	}
	_, err := p.q.CopyFrom(ctx, pgx.Identifier{"assignment_changes"}, []string{
		"id", "run_id", "booking_id", "slot", "customer_name", "customer_pincode",
		"old_technician", "new_technician", "old_km", "new_km", "delta_km", "changed",
	}, pgx.CopyFromRows(rows))
	return err
}

const runColumns = `id, city, date, run_at, before_total_km, after_total_km, distance_saved_km, groups_optimized, meta`

func scanRun(row pgx.Row) (models.AssignmentRun, error) {
	var (
		r    models.AssignmentRun
		meta []byte
	)
	if err := row.Scan(&r.ID, &r.City, &r.Date, &r.RunAt, &r.BeforeTotalKm, &r.AfterTotalKm, &r.DistanceSavedKm, &r.GroupsOptimized, &meta); err != nil {
		return r, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Meta); err != nil {
			return r, fmt.Errorf("decode run meta: %w", err)
		}
	}
	return r, nil
}

func (p *pgQueries) ListRuns(ctx context.Context, city string, date *time.Time, limit int) ([]models.AssignmentRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM assignment_runs`
	var args []any
	var wheres []string
	if city != "" {
		args = append(args, city)
		wheres = append(wheres, fmt.Sprintf("city = $%d", len(args)))
	}
	if date != nil {
		args = append(args, *date)
		wheres = append(wheres, fmt.Sprintf("date = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY run_at DESC LIMIT $%d", len(args))

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AssignmentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgQueries) GetRun(ctx context.Context, id string) (models.AssignmentRun, error) {
	r, err := scanRun(p.q.QueryRow(ctx, `SELECT `+runColumns+` FROM assignment_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (p *pgQueries) ListChanges(ctx context.Context, runID string) ([]models.AssignmentChange, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id, run_id, booking_id, slot, customer_name, customer_pincode,
			old_technician, new_technician, old_km, new_km, delta_km, changed
		FROM assignment_changes
		WHERE run_id = $1
		ORDER BY slot, customer_name, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AssignmentChange
	for rows.Next() {
		var c models.AssignmentChange
		if err := rows.Scan(&c.ID, &c.RunID, &c.BookingID, &c.Slot, &c.CustomerName, &c.CustomerPincode,
			&c.OldTechnician, &c.NewTechnician, &c.OldKm, &c.NewKm, &c.DeltaKm, &c.Changed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
