// Package config reads NIRAMAY_* environment variables, optionally from
// a .env file, into a typed Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/niramay/internal/filestore"
	"github.com/dukerupert/niramay/internal/geo"
	"github.com/dukerupert/niramay/internal/maps"
	"github.com/dukerupert/niramay/internal/vision"
)

const prefix = "NIRAMAY_"

type Config struct {
	Port     string
	DBPath   string
	LogLevel string
	BaseURL  string

	SessionTTL       time.Duration
	SessionBootstrap time.Duration
	AllowedOrigins   []string

	Vision vision.Config
	Maps   maps.Config
	S3     filestore.S3Config

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	PostmarkToken string
	EmailFrom     string
}

// Load reads files (default ".env") if present and then the environment.
// A missing .env file is not an error; variables already set in the
// environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Port:     e.str("PORT", "8080"),
		DBPath:   e.str("DB_PATH", "niramay.db"),
		LogLevel: e.str("LOG_LEVEL", "info"),
		BaseURL:  strings.TrimRight(e.str("BASE_URL", "http://localhost:8080"), "/"),

		SessionTTL:       e.duration("SESSION_TTL", 30*24*time.Hour),
		SessionBootstrap: e.duration("SESSION_BOOTSTRAP_TIMEOUT", 5*time.Second),
		AllowedOrigins:   e.list("ALLOWED_ORIGINS"),

		Vision: vision.Config{
			APIKey:   e.str("VISION_API_KEY", ""),
			Model:    e.str("VISION_MODEL", ""),
			Endpoint: e.str("VISION_ENDPOINT", ""),
		},
		Maps: maps.Config{
			APIKey:     e.str("MAPS_API_KEY", ""),
			BrowserKey: e.str("MAPS_BROWSER_KEY", ""),
			Endpoint:   e.str("MAPS_ENDPOINT", ""),
			Center: geo.Point{
				Lat: e.float("MAPS_CENTER_LAT", 12.9716),
				Lng: e.float("MAPS_CENTER_LNG", 77.5946),
			},
			Zoom: e.int("MAPS_ZOOM", 13),
		},
		S3: filestore.S3Config{
			Endpoint:  e.str("S3_ENDPOINT", ""),
			Bucket:    e.str("S3_BUCKET", ""),
			Region:    e.str("S3_REGION", "auto"),
			AccessKey: e.str("S3_ACCESS_KEY", ""),
			SecretKey: e.str("S3_SECRET_KEY", ""),
		},

		VAPIDPublicKey:  e.str("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: e.str("VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber: e.str("VAPID_SUBSCRIBER", "mailto:admin@niramay.local"),

		PostmarkToken: e.str("POSTMARK_TOKEN", ""),
		EmailFrom:     e.str("EMAIL_FROM", "noreply@niramay.local"),
	}

	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := cfg.Maps.Center.Validate(); err != nil {
		return nil, fmt.Errorf("map centre: %w", err)
	}
	if cfg.SessionBootstrap <= 0 {
		return nil, fmt.Errorf("%sSESSION_BOOTSTRAP_TIMEOUT must be positive", prefix)
	}
	return cfg, nil
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(prefix + key)); v != "" {
		return v
	}
	return def
}

func (e *env) list(key string) []string {
	v := e.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", prefix, key, err))
		return def
	}
	return d
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", prefix, key, err))
		return def
	}
	return f
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", prefix, key, err))
		return def
	}
	return n
}
