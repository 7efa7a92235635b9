package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOCK_WAIT", "250ms")
	t.Setenv("GEOCODER", "nominatim")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.LockWait)
	assert.Equal(t, "nominatim", cfg.Geocoder)
	assert.Equal(t, "India", cfg.NominatimCountry)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoadWithOverrides(t *testing.T) {
	v := viper.New()
	v.Set("PORT", "9090")
	v.Set("STAFF_KEY", "s3cret")

	cfg, err := LoadWith(v)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "s3cret", cfg.StaffKey)
}
