package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/techdispatch/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

// Lookup resolves a postal code to coordinates.
type Lookup interface {
	Resolve(ctx context.Context, postalCode string) (models.Point, error)
}

func NormalizePostalCode(code string) string {
	return strings.TrimSpace(code)
}
