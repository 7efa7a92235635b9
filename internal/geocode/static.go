package geocode

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/techdispatch/backend/internal/models"
)

//go:embed pincodes.yaml
var defaultTable []byte

// StaticTable is a read-only postal code table loaded once at startup.
type StaticTable struct {
	coords map[string]models.Point
}

type tableEntry struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

func ParseTable(data []byte) (*StaticTable, error) {
	var raw map[string]tableEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse postal table: %w", err)
	}
	coords := make(map[string]models.Point, len(raw))
	for code, e := range raw {
		key := NormalizePostalCode(code)
		if key == "" {
			continue
		}
		p := models.Point{Lat: e.Lat, Lng: e.Lng}
		if !p.Valid() {
			return nil, fmt.Errorf("postal table: invalid coordinates for %s", code)
		}
		coords[key] = p
	}
	return &StaticTable{coords: coords}, nil
}

// LoadTable reads the table at path, or the embedded default when path is empty.
func LoadTable(path string) (*StaticTable, error) {
	if path == "" {
		return ParseTable(defaultTable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read postal table: %w", err)
	}
	return ParseTable(data)
}

// NewStaticTable is mostly useful for tests.
func NewStaticTable(coords map[string]models.Point) *StaticTable {
	out := make(map[string]models.Point, len(coords))
	for k, v := range coords {
		out[NormalizePostalCode(k)] = v
	}
	return &StaticTable{coords: out}
}

func (t *StaticTable) Resolve(_ context.Context, postalCode string) (models.Point, error) {
	code := NormalizePostalCode(postalCode)
	if code == "" {
		return models.Point{}, ErrNotFound
	}
	p, ok := t.coords[code]
	if !ok {
		return models.Point{}, ErrNotFound
	}
	return p, nil
}

func (t *StaticTable) Len() int {
	return len(t.coords)
}
