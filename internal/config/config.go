package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed levels.yaml
var levelsYAML []byte

// Gallery backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Gallery   GalleryConfig
	Database  DatabaseConfig
	Extractor ExtractorConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Log       LogConfig
	Levels    LevelsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins; empty allows any
}

type GalleryConfig struct {
	Backend            string  // file or postgres
	Path               string  // gob file for the file backend
	Dimension          int     // 0 adopts the first enrolled sample's dimension
	Metric             string  // euclidean (default) or cosine
	Threshold          float64 // maximum distance for a match
	TieTolerance       float64 // distance gap below which two identities are ambiguous
	DuplicateThreshold float64 // enrollment rejects samples this close to another identity
	IndexMinSamples    int     // HNSW ordering hint kicks in above this many samples
	CandidateLimit     int     // HNSW nodes fetched per probe
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL          string        // defaults to http://localhost:8000
	Timeout      time.Duration // per-request timeout
	MaxImageSize int           // longest image side sent to the extractor, in pixels
}

type AuthConfig struct {
	TicketSecret   string
	TicketTTL      time.Duration
	BcryptCost     int
	RequireSession bool   // face auth denied unless a login ticket is presented
	AdminToken     string // bearer token for admin routes; empty disables them
	LoginPerMinute int
	LoginBurst     int
}

type RedisConfig struct {
	Addr     string // empty keeps ticket revocations in memory
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

// LevelsConfig is the access-level catalogue embedded in the binary.
type LevelsConfig struct {
	Levels []LevelInfo `yaml:"levels"`
}

type LevelInfo struct {
	Level       int    `yaml:"level" json:"level"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

// Label returns the label for level, or "No access" for unknown levels.
func (c LevelsConfig) Label(level int) string {
	for _, l := range c.Levels {
		if l.Level == level {
			return l.Label
		}
	}
	return "No access"
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a finite float; unset or invalid values yield the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

// envDuration accepts Go durations ("90s", "12h") or plain seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() *Config {
	var levels LevelsConfig
	if err := yaml.Unmarshal(levelsYAML, &levels); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded levels.yaml: " + err.Error())
	}

	metric := strings.ToLower(strings.TrimSpace(os.Getenv("MATCH_METRIC")))
	threshold, duplicate := 0.6, 0.3
	if metric == "cosine" {
		threshold, duplicate = 0.4, 0.15
	}

	return &Config{
		Server: ServerConfig{
			Host:           envString("SERVER_HOST", "0.0.0.0"),
			Port:           envInt("SERVER_PORT", 5000),
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
		},
		Gallery: GalleryConfig{
			Backend:            strings.ToLower(envString("GALLERY_BACKEND", BackendFile)),
			Path:               envString("GALLERY_PATH", "data/gallery.gob"),
			Dimension:          envInt("EMBEDDING_DIM", 0),
			Metric:             metric,
			Threshold:          envFloat("MATCH_THRESHOLD", threshold),
			TieTolerance:       envFloat("MATCH_TIE_TOLERANCE", 1e-6),
			DuplicateThreshold: envFloat("DUPLICATE_THRESHOLD", duplicate),
			IndexMinSamples:    envInt("INDEX_MIN_SAMPLES", 2000),
			CandidateLimit:     envInt("INDEX_CANDIDATES", 64),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL:          envString("EXTRACTOR_URL", "http://localhost:8000"),
			Timeout:      envDuration("EXTRACTOR_TIMEOUT", 30*time.Second),
			MaxImageSize: envInt("EXTRACTOR_MAX_IMAGE_SIZE", 1280),
		},
		Auth: AuthConfig{
			TicketSecret:   os.Getenv("AUTH_TICKET_SECRET"),
			TicketTTL:      envDuration("AUTH_TICKET_TTL", 12*time.Hour),
			BcryptCost:     envInt("AUTH_BCRYPT_COST", 10),
			RequireSession: envBool("AUTH_REQUIRE_SESSION", false),
			AdminToken:     os.Getenv("ADMIN_TOKEN"),
			LoginPerMinute: envInt("LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:     envInt("LOGIN_RATE_BURST", 5),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Levels: levels,
	}
}

// Validate reports configuration errors that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Gallery.Backend {
	case BackendFile:
		if c.Gallery.Path == "" {
			errs = append(errs, errors.New("GALLERY_PATH is required for the file backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GALLERY_BACKEND %q (want file or postgres)", c.Gallery.Backend))
	}
	switch c.Gallery.Metric {
	case "", "euclidean", "cosine":
	default:
		errs = append(errs, fmt.Errorf("unknown MATCH_METRIC %q (want euclidean or cosine)", c.Gallery.Metric))
	}
	if c.Gallery.Threshold <= 0 {
		errs = append(errs, errors.New("MATCH_THRESHOLD must be positive"))
	}
	if c.Gallery.TieTolerance < 0 {
		errs = append(errs, errors.New("MATCH_TIE_TOLERANCE must not be negative"))
	}
	if len(c.Levels.Levels) == 0 {
		errs = append(errs, errors.New("no access levels defined"))
	}
	return errors.Join(errs...)
}
