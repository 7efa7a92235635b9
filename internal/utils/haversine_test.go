package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/techdispatch/backend/internal/models"
)

func TestDistanceKmIdentical(t *testing.T) {
	points := []models.Point{
		{Lat: 0, Lng: 0},
		{Lat: 19.076, Lng: 72.8777},
		{Lat: -33.86, Lng: 151.21},
		{Lat: 89.9, Lng: -179.9},
	}
	for _, p := range points {
		assert.Zero(t, DistanceKm(p, p))
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	a := models.Point{Lat: 19.076, Lng: 72.8777}
	b := models.Point{Lat: 28.6139, Lng: 77.209}
	assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-9)
	assert.Greater(t, DistanceKm(a, b), 0.0)
}

func TestHaversineKmKnownDistance(t *testing.T) {
	// Mumbai to Delhi is roughly 1150 km
	d := HaversineKm(19.076, 72.8777, 28.6139, 77.209)
	if d < 1130 || d > 1170 {
		t.Fatalf("unexpected distance: %f", d)
	}
}

func TestHaversineKmOneDegreeOfLatitude(t *testing.T) {
	assert.InDelta(t, 111.195, HaversineKm(0, 0, 1, 0), 0.01)
}

func TestAdvisoryLockIDStable(t *testing.T) {
	assert.Equal(t, AdvisoryLockID("Mumbai|2025-01-15"), AdvisoryLockID("Mumbai|2025-01-15"))
	assert.NotEqual(t, AdvisoryLockID("Mumbai|2025-01-15"), AdvisoryLockID("Pune|2025-01-15"))
}
