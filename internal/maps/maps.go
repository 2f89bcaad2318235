// Package maps wraps the geocoding provider and holds the browser SDK
// configuration. One Service is built at startup and shared.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/niramay/internal/geo"
)

const (
	defaultEndpoint   = "https://maps.googleapis.com/maps/api"
	directionsBaseURL = "https://www.google.com/maps/dir/"

	// Reverse lookups are cached per ~11 m cell; reports from one spot
	// tend to arrive in bursts.
	cacheTTL      = 24 * time.Hour
	cacheMaxCells = 2048
)

var ErrNotConfigured = errors.New("maps provider is not configured")

// Config holds maps provider configuration from environment variables.
type Config struct {
	APIKey     string // server-side geocoding key
	BrowserKey string // key handed to the JS SDK; falls back to APIKey
	Endpoint   string
	Center     geo.Point
	Zoom       int
}

// BrowserConfig is what the web client needs to load the SDK.
type BrowserConfig struct {
	APIKey     string    `json:"api_key"`
	Center     geo.Point `json:"center"`
	Zoom       int       `json:"zoom"`
	Configured bool      `json:"configured"`
}

// Place is a reverse-geocoded location.
type Place struct {
	Address string `json:"address"`
	Ward    string `json:"ward"`
}

type cached struct {
	place     Place
	fetchedAt time.Time
}

type Service struct {
	config  Config
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	cache map[string]cached
	now   func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.BrowserKey == "" {
		cfg.BrowserKey = cfg.APIKey
	}
	if cfg.Zoom == 0 {
		cfg.Zoom = 13
	}
	base := cfg.Endpoint
	if base == "" {
		base = defaultEndpoint
	}
	return &Service{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(base, "/"),
		cache:   make(map[string]cached),
		now:     time.Now,
	}
}

func (s *Service) Configured() bool {
	return s != nil && s.config.APIKey != ""
}

func (s *Service) BrowserConfig() BrowserConfig {
	return BrowserConfig{
		APIKey:     s.config.BrowserKey,
		Center:     s.config.Center,
		Zoom:       s.config.Zoom,
		Configured: s.config.BrowserKey != "",
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress  string      `json:"formatted_address"`
		AddressComponents []component `json:"address_components"`
	} `json:"results"`
}

type component struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

// wardTypes are the component types that carry a municipal ward, most
// specific first.
var wardTypes = []string{"sublocality_level_2", "sublocality_level_1", "sublocality", "neighborhood"}

// ReverseGeocode resolves coordinates to a formatted address and ward.
// Only successful lookups are cached.
func (s *Service) ReverseGeocode(ctx context.Context, p geo.Point) (Place, error) {
	if !s.Configured() {
		return Place{}, ErrNotConfigured
	}
	if err := p.Validate(); err != nil {
		return Place{}, err
	}

	key := cellKey(p)
	if place, ok := s.lookup(key); ok {
		return place, nil
	}
	place, err := s.fetch(ctx, p)
	if err != nil {
		return Place{}, err
	}
	s.store(key, place)
	return place, nil
}

func cellKey(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 4, 64)
}

func (s *Service) lookup(key string) (Place, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[key]
	if !ok {
		return Place{}, false
	}
	if s.now().Sub(c.fetchedAt) > cacheTTL {
		delete(s.cache, key)
		return Place{}, false
	}
	return c.place, true
}

func (s *Service) store(key string, place Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) >= cacheMaxCells {
		clear(s.cache)
	}
	s.cache[key] = cached{place: place, fetchedAt: s.now()}
}

func (s *Service) fetch(ctx context.Context, p geo.Point) (Place, error) {
	q := url.Values{}
	q.Set("latlng", formatPoint(p))
	q.Set("key", s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/geocode/json?"+q.Encode(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("create geocode request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geocode API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("geocode API returned status %d", resp.StatusCode)
	}

	var gr geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return Place{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if gr.Status != "OK" || len(gr.Results) == 0 {
		return Place{}, fmt.Errorf("geocode API status %s %s", gr.Status, gr.ErrorMessage)
	}

	first := gr.Results[0]
	return Place{
		Address: first.FormattedAddress,
		Ward:    wardOf(first.AddressComponents),
	}, nil
}

func wardOf(comps []component) string {
	for _, want := range wardTypes {
		for _, c := range comps {
			for _, t := range c.Types {
				if t == want {
					return c.LongName
				}
			}
		}
	}
	return ""
}

// DirectionsURL links to turn-by-turn directions from origin to dest.
// A zero origin lets the map app use the device's location.
func DirectionsURL(origin, dest geo.Point) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("destination", formatPoint(dest))
	q.Set("travelmode", "driving")
	if origin != (geo.Point{}) {
		q.Set("origin", formatPoint(origin))
	}
	return directionsBaseURL + "?" + q.Encode()
}

func formatPoint(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
