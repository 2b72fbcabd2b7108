package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything fixed at process start. All knobs come from the
// environment so main stays lean.
type Config struct {
	Addr string

	// PostgresDSN selects the durable store. Empty means in-memory stores,
	// which is only suitable for development and tests.
	PostgresDSN string

	// RedisURL, when set, backs admin sessions with redis instead of postgres.
	RedisURL string

	// KafkaBrokers, when set, mirrors audit events to the audit topic.
	KafkaBrokers []string
	KafkaTopic   string

	// SigningSecret keys the visitor session tokens. Rotating it invalidates
	// every outstanding token; there is no other expiry path for them.
	SigningSecret string

	// AdminPasswordHash is a bcrypt hash. FORTUNA_ADMIN_PASSWORD (plaintext)
	// is accepted for development and hashed at startup by main.
	AdminPasswordHash string
	AdminPassword     string
	AdminSessionTTL   time.Duration

	SpinCooldown    time.Duration
	CouponLifetime  time.Duration
	SpinMinInterval time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:              envOr("FORTUNA_ADDR", ":8080"),
		PostgresDSN:       os.Getenv("FORTUNA_POSTGRES_DSN"),
		RedisURL:          os.Getenv("FORTUNA_REDIS_URL"),
		KafkaTopic:        envOr("FORTUNA_KAFKA_AUDIT_TOPIC", "fortuna.audit"),
		SigningSecret:     envOr("FORTUNA_SIGNING_SECRET", "dev-secret-change-in-production"),
		AdminPasswordHash: os.Getenv("FORTUNA_ADMIN_PASSWORD_HASH"),
		AdminPassword:     envOr("FORTUNA_ADMIN_PASSWORD", "vector-secret"),
		AdminSessionTTL:   12 * time.Hour,
	}

	if brokers := os.Getenv("FORTUNA_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	cooldownDays, err := envInt("FORTUNA_SPIN_COOLDOWN_DAYS", 7)
	if err != nil {
		return Config{}, err
	}
	lifetimeDays, err := envInt("FORTUNA_COUPON_LIFETIME_DAYS", 30)
	if err != nil {
		return Config{}, err
	}
	intervalMs, err := envInt("FORTUNA_SPIN_MIN_INTERVAL_MS", 5000)
	if err != nil {
		return Config{}, err
	}

	cfg.SpinCooldown = time.Duration(cooldownDays) * 24 * time.Hour
	cfg.CouponLifetime = time.Duration(lifetimeDays) * 24 * time.Hour
	cfg.SpinMinInterval = time.Duration(intervalMs) * time.Millisecond
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: expected integer, got %q", key, v)
	}
	return n, nil
}
