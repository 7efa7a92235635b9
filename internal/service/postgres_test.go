package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdispatch/backend/internal/db"
	"github.com/techdispatch/backend/internal/models"
)

func openPostgres(t *testing.T) *db.Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := db.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx, "up"))
	return s
}

func changedCount(changes []models.AssignmentChange) int {
	n := 0
	for _, ch := range changes {
		if ch.Changed {
			n++
		}
	}
	return n
}

func TestPostgresApplySwapAndIdempotence(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	city := "Swap-" + uuid.NewString()[:8]
	seedSwap(t, s, city)
	o := newOrchestrator(s)

	before := takeSnapshot(t, s, city)
	require.Len(t, before.bookings, 2)
	assert.Equal(t, city+"-t2", techOf(before, city+"-b1"))
	require.NotNil(t, before.bookings[0].Technician, "day bookings carry their technician")
	assert.ElementsMatch(t, []string{city + "-t1", city + "-t2"}, bookedIDs(before, "09_11"))

	run, err := o.Apply(ctx, city, day)
	require.NoError(t, err)
	assert.Equal(t, 1, run.GroupsOptimized)
	assert.Greater(t, run.DistanceSavedKm, 0.0)

	after := takeSnapshot(t, s, city)
	assert.Equal(t, city+"-t1", techOf(after, city+"-b1"))
	assert.Equal(t, city+"-t2", techOf(after, city+"-b2"))
	assert.ElementsMatch(t, []string{city + "-t1", city + "-t2"}, bookedIDs(after, "09_11"))
	require.Len(t, after.runs, 1)

	detail, err := o.Run(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, detail.Changes, 2)
	assert.Equal(t, 2, changedCount(detail.Changes))

	again, err := o.Apply(ctx, city, day)
	require.NoError(t, err)
	assert.Zero(t, again.GroupsOptimized)
	assert.InDelta(t, 0, again.DistanceSavedKm, 1e-9)

	detail, err = o.Run(ctx, again.ID)
	require.NoError(t, err)
	assert.Zero(t, changedCount(detail.Changes))

	final := takeSnapshot(t, s, city)
	assert.Equal(t, city+"-t1", techOf(final, city+"-b1"))
	assert.Len(t, final.runs, 2)
}

func TestPostgresApplyWritePrimitives(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	city := "Prim-" + uuid.NewString()[:8]
	seedSwap(t, s, city)

	err := s.Atomic(ctx, "", func(q db.Queries) error {
		return q.ReassignBooking(ctx, city+"-b1", city+"-t1", city+"-t2")
	})
	assert.ErrorIs(t, err, db.ErrConflict, "b1 is held by t2, not t1")

	err = s.Atomic(ctx, "", func(q db.Queries) error {
		return q.BookSlot(ctx, city+"-t1", day.AddDate(0, 0, 1), "09_11")
	})
	assert.ErrorIs(t, err, db.ErrNotFound, "no slot row exists for the next day")

	require.NoError(t, s.Atomic(ctx, "", func(q db.Queries) error {
		return q.ReleaseSlot(ctx, city+"-t1", day, "09_11")
	}))
	snap := takeSnapshot(t, s, city)
	assert.Equal(t, []string{city + "-t2"}, bookedIDs(snap, "09_11"))
}
