package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yeremiapane/campus-gate/utils"
)

// Config menampung seluruh pengaturan aplikasi yang dibaca dari environment.
type Config struct {
	Port       string
	GinMode    string
	JWTSecret  string
	CORSOrigin string

	Database DatabaseConfig
	Engine   EngineConfig

	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// EngineConfig -> pengaturan evaluator, dispatcher dan change feed
type EngineConfig struct {
	EvaluationInterval time.Duration
	CampusOffset       time.Duration
	CutoffHour         int
	GateRotation       []string

	FeedPollInterval   time.Duration
	FeedRetention      time.Duration
	FeedBuffer         int
	FeedReconnectDelay time.Duration
}

// Load membaca .env (jika ada) lalu environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Debugf(".env file not loaded: %v", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv membangun Config dari fungsi lookup; dipisah agar mudah dites
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}

	cfg := Config{
		Port:       r.str("PORT", "8080"),
		GinMode:    r.str("GIN_MODE", ""),
		JWTSecret:  r.str("JWT_SECRET", ""),
		CORSOrigin: r.str("CORS_ORIGIN", "*"),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(r.str("DB_DRIVER", "sqlite")),
			DSN:      r.str("DB_DSN", ""),
			Host:     r.str("DB_HOST", "127.0.0.1"),
			Port:     r.str("DB_PORT", "3306"),
			User:     r.str("DB_USER", "root"),
			Password: r.str("DB_PASSWORD", ""),
			Name:     r.str("DB_NAME", "campus_gate"),
		},
		Engine: EngineConfig{
			EvaluationInterval: r.duration("EVALUATION_INTERVAL", 5*time.Minute),
			CampusOffset:       r.duration("CAMPUS_UTC_OFFSET", 8*time.Hour),
			CutoffHour:         r.integer("EXPIRATION_CUTOFF_HOUR", 22),
			GateRotation:       r.list("GATE_ROTATION", []string{"Gate 1", "Gate 2"}),
			FeedPollInterval:   r.duration("FEED_POLL_INTERVAL", 500*time.Millisecond),
			FeedRetention:      r.duration("FEED_RETENTION", time.Hour),
			FeedBuffer:         r.integer("FEED_BUFFER", 64),
			FeedReconnectDelay: r.duration("FEED_RECONNECT_DELAY", 2*time.Second),
		},
		RateLimitRPS:   r.float("RATE_LIMIT_RPS", 10),
		RateLimitBurst: r.integer("RATE_LIMIT_BURST", 20),
	}

	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Engine.CutoffHour < 0 || c.Engine.CutoffHour > 23 {
		return fmt.Errorf("EXPIRATION_CUTOFF_HOUR must be between 0 and 23, got %d", c.Engine.CutoffHour)
	}
	if len(c.Engine.GateRotation) == 0 {
		return fmt.Errorf("GATE_ROTATION must list at least one gate")
	}
	if c.Engine.EvaluationInterval <= 0 || c.Engine.FeedPollInterval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.Engine.FeedBuffer <= 0 {
		return fmt.Errorf("FEED_BUFFER must be positive")
	}
	return nil
}

type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return f
}

func (r *reader) list(key string, def []string) []string {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
