package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "19.0596",
			Lon:         "72.8295",
			DisplayName: "Bandra West, Mumbai, India",
		},
	}
	p, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Lat != 19.0596 || p.Lng != 72.8295 {
		t.Fatalf("unexpected coordinates: %+v", p)
	}
}

func TestParseNominatimItemsEmpty(t *testing.T) {
	if _, err := parseNominatimItems(nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNominatimResolveCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if got := r.URL.Query().Get("postalcode"); got != "400050" {
			t.Errorf("unexpected postalcode %q", got)
		}
		if got := r.URL.Query().Get("country"); got != "India" {
			t.Errorf("unexpected country %q", got)
		}
		fmt.Fprint(w, `[{"lat":"19.0596","lon":"72.8295","display_name":"Bandra"}]`)
	}))
	defer srv.Close()

	g := &Nominatim{BaseURL: srv.URL, Country: "India", MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		p, err := g.Resolve(context.Background(), " 400050 ")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if p.Lat != 19.0596 {
			t.Fatalf("unexpected lat %f", p.Lat)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
}

func TestNominatimResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	g := &Nominatim{BaseURL: srv.URL, MinInterval: time.Millisecond}
	if _, err := g.Resolve(context.Background(), "999999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseNominatimItemsRejectsUnusableCoordinates(t *testing.T) {
	for _, c := range [][2]string{{"NaN", "72.8"}, {"19.0", "Inf"}, {"-Infinity", "72.8"}, {"91", "72.8"}, {"19.0", "180.5"}} {
		items := []nominatimItem{{Lat: c[0], Lon: c[1], DisplayName: "somewhere"}}
		if p, err := parseNominatimItems(items); err == nil {
			t.Fatalf("%v: expected error, got %+v", c, p)
		}
	}
}

func TestNominatimResolveDoesNotCacheInvalidCoordinates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `[{"lat":"NaN","lon":"72.8295","display_name":"Bandra"}]`)
	}))
	defer srv.Close()

	g := &Nominatim{BaseURL: srv.URL, MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		if _, err := g.Resolve(context.Background(), "400050"); err == nil {
			t.Fatal("expected error for NaN latitude")
		}
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected two upstream calls, got %d", calls)
	}
}
