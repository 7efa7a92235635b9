package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/techdispatch/backend/internal/models"
)

// Nominatim resolves postal codes through the OSM search API.
type Nominatim struct {
	BaseURL     string
	UserAgent   string
	Country     string
	MinInterval time.Duration
	Client      *http.Client

	mu      sync.Mutex
	limiter *rate.Limiter
	cache   map[string]models.Point
}

// init fills defaults on first use. Callers hold mu.
func (g *Nominatim) init() {
	if g.cache != nil {
		return
	}
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if g.UserAgent == "" {
		g.UserAgent = "techdispatch-backend"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}
	g.limiter = rate.NewLimiter(rate.Every(g.MinInterval), 1)
	g.cache = map[string]models.Point{}
}

type nominatimItem struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *Nominatim) Resolve(ctx context.Context, postalCode string) (models.Point, error) {
	code := NormalizePostalCode(postalCode)
	if code == "" {
		return models.Point{}, ErrNotFound
	}
	g.mu.Lock()
	g.init()
	if cached, ok := g.cache[code]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	limiter := g.limiter
	g.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return models.Point{}, err
	}

	q := url.Values{}
	q.Set("postalcode", code)
	if g.Country != "" {
		q.Set("country", g.Country)
	}
	q.Set("format", "json")
	q.Set("limit", "1")
	endpoint := fmt.Sprintf("%s/search?%s", g.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Point{}, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return models.Point{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Point{}, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return models.Point{}, err
	}
	point, err := parseNominatimItems(items)
	if err != nil {
		return models.Point{}, err
	}

	g.mu.Lock()
	g.cache[code] = point
	g.mu.Unlock()

	return point, nil
}

func parseNominatimItems(items []nominatimItem) (models.Point, error) {
	if len(items) == 0 {
		return models.Point{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return models.Point{}, err
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return models.Point{}, err
	}
	if lat == 0 && lon == 0 && items[0].DisplayName == "" {
		return models.Point{}, ErrNotFound
	}
	p := models.Point{Lat: lat, Lng: lon}
	if !p.Valid() {
		return models.Point{}, fmt.Errorf("nominatim: invalid coordinates %q,%q", items[0].Lat, items[0].Lon)
	}
	return p, nil
}
