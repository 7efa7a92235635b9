package geocode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableResolves(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 0)

	p, err := table.Resolve(context.Background(), " 400001 ")
	require.NoError(t, err)
	assert.InDelta(t, 18.9388, p.Lat, 1e-9)
	assert.InDelta(t, 72.8354, p.Lng, 1e-9)
}

func TestStaticTableUnknownCode(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)

	_, err = table.Resolve(context.Background(), "000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = table.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\"12345\": {lat: 1.5, lng: 2.5}\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	p, err := table.Resolve(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.Lat)
	assert.Equal(t, 2.5, p.Lng)
}

func TestParseTableRejectsGarbage(t *testing.T) {
	_, err := ParseTable([]byte("- not\n- a map"))
	assert.Error(t, err)
}

func TestParseTableRejectsUnusableCoordinates(t *testing.T) {
	for name, doc := range map[string]string{
		"nan":          "\"400001\": {lat: .nan, lng: 72.8}\n",
		"inf":          "\"400001\": {lat: 18.9, lng: .inf}\n",
		"out of range": "\"400001\": {lat: 95, lng: 72.8}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(doc))
			assert.Error(t, err)
		})
	}
}
