// Package config loads the service's environment-variable configuration
// (spec §6) with an optional YAML overlay for non-secret scheduler tuning,
// and hot-reloads the overlay file the way the teacher's
// internal/config/hotreload.go watches its own JSON config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration for one process. Fields sourced
// from the environment are always authoritative; fields sourced from the
// optional YAML file never override an environment variable that is set.
type Config struct {
	// DBConnectionString is DB_CONNECTION_STRING (required, no default).
	DBConnectionString string

	// Port is PORT (default 3000).
	Port int

	// NodeEnv is NODE_ENV ("production" switches slog to the JSON handler
	// at info level; any other value uses the text handler at debug level).
	NodeEnv string

	// JWTSecret is JWT_SECRET. Empty disables bearer-token auth entirely,
	// matching the teacher's tokenMatch "no auth configured" convention.
	JWTSecret string

	// Timezone is TIMEZONE. Accepted and reported but never consulted by
	// cronexpr, which always evaluates in Asia/Kolkata per spec §9.
	Timezone string

	// AllowedOrigins is ALLOWED_ORIGINS, comma-separated. Hot-reloadable
	// from the YAML overlay file without a process restart.
	AllowedOrigins []string

	// Tuning holds the non-secret knobs the optional YAML file can set.
	Tuning Tuning
}

// Tuning holds scheduler/cache/pool knobs that are safe to reload at
// runtime, unlike the secrets and connection string above.
type Tuning struct {
	// SyncIntervalSeconds is how often the scheduler reconciles its
	// in-memory timers against is_active (spec §4.E sync loop).
	SyncIntervalSeconds int `yaml:"syncIntervalSeconds"`

	// ListCacheTTLSeconds/DetailCacheTTLSeconds are the two expirable-LRU
	// TTL classes (spec §4.D: 2-minute list, 10-minute detail).
	ListCacheTTLSeconds   int `yaml:"listCacheTTLSeconds"`
	DetailCacheTTLSeconds int `yaml:"detailCacheTTLSeconds"`

	// MaxOpenConns bounds the Postgres pool (spec §4.A: "≈20").
	MaxOpenConns int `yaml:"maxOpenConns"`

	// GeneralRateLimitPerMin/TriggerRateLimitPerMin are the edge token-
	// bucket limits cmd/serve.go applies around the control plane
	// (spec §5: general 100/min/IP, 20/min/IP on /jobs/:id/trigger).
	GeneralRateLimitPerMin int `yaml:"generalRateLimitPerMin"`
	TriggerRateLimitPerMin int `yaml:"triggerRateLimitPerMin"`
}

// DefaultTuning mirrors the literal defaults named across spec §4.A/§4.D/§5.
func DefaultTuning() Tuning {
	return Tuning{
		SyncIntervalSeconds:    30,
		ListCacheTTLSeconds:    120,
		DetailCacheTTLSeconds:  600,
		MaxOpenConns:           20,
		GeneralRateLimitPerMin: 100,
		TriggerRateLimitPerMin: 20,
	}
}

// Load resolves Config from the environment, then layers yamlPath's
// non-secret tuning on top if yamlPath is non-empty and the file exists.
// An empty yamlPath is valid — tuning simply stays at its defaults.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		DBConnectionString: os.Getenv("DB_CONNECTION_STRING"),
		Port:               envInt("PORT", 3000),
		NodeEnv:            envOr("NODE_ENV", "development"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		Timezone:           envOr("TIMEZONE", "Asia/Kolkata"),
		AllowedOrigins:     splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		Tuning:             DefaultTuning(),
	}

	if cfg.DBConnectionString == "" {
		return nil, fmt.Errorf("config: DB_CONNECTION_STRING is required")
	}

	if yamlPath != "" {
		if err := cfg.loadYAMLOverlay(yamlPath); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadYAMLOverlay layers a YAML file's allowedOrigins and tuning knobs on
// top of cfg. A missing file is not an error — the overlay is optional.
func (c *Config) loadYAMLOverlay(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var overlay struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
		Tuning         Tuning   `yaml:"tuning"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if os.Getenv("ALLOWED_ORIGINS") == "" && len(overlay.AllowedOrigins) > 0 {
		c.AllowedOrigins = overlay.AllowedOrigins
	}
	if overlay.Tuning != (Tuning{}) {
		c.Tuning = mergeTuning(DefaultTuning(), overlay.Tuning)
	}
	return nil
}

// mergeTuning overlays non-zero fields of override onto base.
func mergeTuning(base, override Tuning) Tuning {
	if override.SyncIntervalSeconds != 0 {
		base.SyncIntervalSeconds = override.SyncIntervalSeconds
	}
	if override.ListCacheTTLSeconds != 0 {
		base.ListCacheTTLSeconds = override.ListCacheTTLSeconds
	}
	if override.DetailCacheTTLSeconds != 0 {
		base.DetailCacheTTLSeconds = override.DetailCacheTTLSeconds
	}
	if override.MaxOpenConns != 0 {
		base.MaxOpenConns = override.MaxOpenConns
	}
	if override.GeneralRateLimitPerMin != 0 {
		base.GeneralRateLimitPerMin = override.GeneralRateLimitPerMin
	}
	if override.TriggerRateLimitPerMin != 0 {
		base.TriggerRateLimitPerMin = override.TriggerRateLimitPerMin
	}
	return base
}

// IsProduction reports whether NodeEnv selects production logging
// (cmd/serve.go's setupLogging). HTTP error bodies do not depend on it.
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// SyncInterval/ListCacheTTL/DetailCacheTTL convert the YAML-friendly int
// seconds into the time.Duration the scheduler/cache packages take.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Tuning.SyncIntervalSeconds) * time.Second
}

func (c *Config) ListCacheTTL() time.Duration {
	return time.Duration(c.Tuning.ListCacheTTLSeconds) * time.Second
}

func (c *Config) DetailCacheTTL() time.Duration {
	return time.Duration(c.Tuning.DetailCacheTTLSeconds) * time.Second
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
