package service

import (
	"sort"

	"github.com/techdispatch/backend/internal/models"
	"github.com/techdispatch/backend/internal/utils"
)

// Visit is one stop on a technician's day.
type Visit struct {
	Slot     string
	Location models.Point
}

// RouteDistance walks visits in the window order given by order, starting
// at start and moving the current position to each visited location. A
// technician with no known position has no route. Windows missing from
// order sort after known ones.
func RouteDistance(start *models.Point, visits []Visit, order []string) float64 {
	if start == nil || !start.Valid() || len(visits) == 0 {
		return 0
	}
	rank := make(map[string]int, len(order))
	for i, code := range order {
		rank[code] = i
	}
	pos := func(code string) int {
		if r, ok := rank[code]; ok {
			return r
		}
		return len(order)
	}

	sorted := append([]Visit(nil), visits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pos(sorted[i].Slot) < pos(sorted[j].Slot)
	})

	current := *start
	total := 0.0
	for _, v := range sorted {
		if !v.Location.Valid() {
			continue
		}
		total += utils.DistanceKm(current, v.Location)
		current = v.Location
	}
	return total
}
