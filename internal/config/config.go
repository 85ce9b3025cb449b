package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	PostgresDSN      string // kosong = record store in-memory (dev)
	PostgresMaxConns int
	RedisAddr        string
	KafkaBrokers     []string
	ServiceName      string
	LogLevel         string

	LockWait        time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	IntentLease     time.Duration
	ReclaimSchedule string
	PruneCompleted  bool
	RejectPastStart bool

	CartBackend string // redis | memory
	CartTTL     time.Duration

	LifecycleGroup   string
	LifecycleWorkers int

	OTLPEndpoint string
}

// Load reads the environment. Malformed values are reported together.
func Load() (Config, error) {
	p := &parser{}
	cfg := Config{
		HTTPAddr:         getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		PostgresMaxConns: p.int("POSTGRES_MAX_CONNS", 8),
		RedisAddr:        getenv("REDIS_ADDR", "redis:6379"),
		KafkaBrokers:     splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		ServiceName:      getenv("SERVICE_NAME", "storefront-api"),
		LogLevel:         getenv("LOG_LEVEL", "info"),

		LockWait:        p.duration("LOCK_WAIT", 2*time.Second),
		RetryAttempts:   p.int("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:  p.duration("RETRY_BASE_DELAY", 25*time.Millisecond),
		RetryMaxDelay:   p.duration("RETRY_MAX_DELAY", 250*time.Millisecond),
		IntentLease:     p.duration("INTENT_LEASE", 30*time.Second),
		ReclaimSchedule: getenv("RECLAIM_SCHEDULE", "@every 30s"),
		PruneCompleted:  p.bool("PRUNE_COMPLETED", false),
		RejectPastStart: p.bool("REJECT_PAST_START", true),

		CartBackend: getenv("CART_BACKEND", "redis"),
		CartTTL:     p.duration("CART_TTL", 7*24*time.Hour),

		LifecycleGroup:   getenv("LIFECYCLE_GROUP", "storefront-lifecycle"),
		LifecycleWorkers: p.int("LIFECYCLE_WORKERS", 4),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if err := cfg.validate(); err != nil {
		p.errs = append(p.errs, err)
	}
	return cfg, errors.Join(p.errs...)
}

func (c Config) validate() error {
	var errs []error
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be positive, got %d", c.RetryAttempts))
	}
	if c.IntentLease <= 0 {
		errs = append(errs, fmt.Errorf("INTENT_LEASE must be positive, got %s", c.IntentLease))
	}
	if c.LockWait <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_WAIT must be positive, got %s", c.LockWait))
	}
	if c.CartBackend != "redis" && c.CartBackend != "memory" {
		errs = append(errs, fmt.Errorf("CART_BACKEND must be redis or memory, got %q", c.CartBackend))
	}
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is empty"))
	}
	return errors.Join(errs...)
}

type parser struct{ errs []error }

func (p *parser) int(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return i
}

func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func (p *parser) bool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
