package maps

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/niramay/internal/geo"
)

const geocodePayload = `{
	"status": "OK",
	"results": [{
		"formatted_address": "12 MG Road, Shanthala Nagar, Bengaluru, Karnataka 560001, India",
		"address_components": [
			{"long_name": "12", "types": ["street_number"]},
			{"long_name": "Shanthala Nagar", "types": ["sublocality_level_1", "sublocality", "political"]},
			{"long_name": "Ashok Nagar", "types": ["sublocality_level_2", "sublocality", "political"]},
			{"long_name": "Bengaluru", "types": ["locality", "political"]}
		]
	}]
}`

func TestReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocode/json" {
			t.Errorf("path = %q, want /geocode/json", r.URL.Path)
		}
		if got := r.URL.Query().Get("latlng"); got != "12.971600,77.594600" {
			t.Errorf("latlng = %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "server-key" {
			t.Errorf("key = %q", got)
		}
		w.Write([]byte(geocodePayload))
	}))
	defer server.Close()

	svc := NewService(Config{APIKey: "server-key", Endpoint: server.URL})
	place, err := svc.ReverseGeocode(t.Context(), geo.Point{Lat: 12.9716, Lng: 77.5946})
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if !strings.HasPrefix(place.Address, "12 MG Road") {
		t.Errorf("Address = %q", place.Address)
	}
	if place.Ward != "Ashok Nagar" {
		t.Errorf("Ward = %q, want %q", place.Ward, "Ashok Nagar")
	}
}

func TestReverseGeocodeErrors(t *testing.T) {
	zero := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer zero.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	p := geo.Point{Lat: 12.97, Lng: 77.59}
	tests := []struct {
		name string
		svc  *Service
		p    geo.Point
	}{
		{"not configured", NewService(Config{}), p},
		{"zero results", NewService(Config{APIKey: "k", Endpoint: zero.URL}), p},
		{"server error", NewService(Config{APIKey: "k", Endpoint: failing.URL}), p},
		{"invalid coordinates", NewService(Config{APIKey: "k", Endpoint: zero.URL}), geo.Point{Lat: 95, Lng: 0}},
	}
	for _, tt := range tests {
		if _, err := tt.svc.ReverseGeocode(t.Context(), tt.p); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestBrowserConfig(t *testing.T) {
	center := geo.Point{Lat: 12.97, Lng: 77.59}

	cfg := NewService(Config{APIKey: "server-key", Center: center}).BrowserConfig()
	if cfg.APIKey != "server-key" || !cfg.Configured {
		t.Errorf("BrowserConfig() = %+v, want fallback to server key", cfg)
	}
	if cfg.Zoom != 13 || cfg.Center != center {
		t.Errorf("BrowserConfig() = %+v", cfg)
	}

	cfg = NewService(Config{APIKey: "server-key", BrowserKey: "browser-key", Zoom: 16}).BrowserConfig()
	if cfg.APIKey != "browser-key" || cfg.Zoom != 16 {
		t.Errorf("BrowserConfig() = %+v", cfg)
	}

	if NewService(Config{}).BrowserConfig().Configured {
		t.Error("empty config reported as configured")
	}
}

func TestDirectionsURL(t *testing.T) {
	dest := geo.Point{Lat: 12.9716, Lng: 77.5946}

	u, err := url.Parse(DirectionsURL(geo.Point{Lat: 12.95, Lng: 77.6}, dest))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("destination") != "12.971600,77.594600" {
		t.Errorf("destination = %q", q.Get("destination"))
	}
	if q.Get("origin") != "12.950000,77.600000" {
		t.Errorf("origin = %q", q.Get("origin"))
	}

	u, _ = url.Parse(DirectionsURL(geo.Point{}, dest))
	if u.Query().Has("origin") {
		t.Error("zero origin should be omitted")
	}
}

func TestReverseGeocodeCachesByCell(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(geocodePayload))
	}))
	defer server.Close()

	svc := NewService(Config{APIKey: "server-key", Endpoint: server.URL})
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for _, p := range []geo.Point{
		{Lat: 12.97161, Lng: 77.59461},
		{Lat: 12.97159, Lng: 77.59459}, // same cell
	} {
		if _, err := svc.ReverseGeocode(t.Context(), p); err != nil {
			t.Fatalf("ReverseGeocode(%v) error = %v", p, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}

	svc.ReverseGeocode(t.Context(), geo.Point{Lat: 12.9800, Lng: 77.5946})
	if got := calls.Load(); got != 2 {
		t.Errorf("provider calls after a new cell = %d, want 2", got)
	}

	now = now.Add(cacheTTL + time.Minute)
	svc.ReverseGeocode(t.Context(), geo.Point{Lat: 12.9716, Lng: 77.5946})
	if got := calls.Load(); got != 3 {
		t.Errorf("provider calls after expiry = %d, want 3", got)
	}
}

func TestReverseGeocodeDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(geocodePayload))
	}))
	defer server.Close()

	svc := NewService(Config{APIKey: "server-key", Endpoint: server.URL})
	p := geo.Point{Lat: 12.9716, Lng: 77.5946}
	if _, err := svc.ReverseGeocode(t.Context(), p); err == nil {
		t.Fatal("expected error from failing provider")
	}
	place, err := svc.ReverseGeocode(t.Context(), p)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if place.Ward != "Ashok Nagar" {
		t.Errorf("Ward = %q", place.Ward)
	}
}
