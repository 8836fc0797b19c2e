package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// LockBackendMemory serialises evaluation writes inside one process.
	LockBackendMemory = "memory"
	// LockBackendRedis serialises evaluation writes across instances.
	LockBackendRedis = "redis"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	EventsChannel      string
	StreamKeepalive    time.Duration
	JWTSecret          string
	PassThreshold      float64
	EvaluationCacheTTL time.Duration
	LockBackend        string
	LockWait           time.Duration
	LockTTL            time.Duration
	SubmitRateLimit    int
	SubmitRateWindow   time.Duration
	SeedFile           string
	SeedEnabled        bool
	SeedToken          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CERTEVAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CertEval API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "certeval")
	v.SetDefault("events.stream_keepalive", "30s")
	v.SetDefault("evaluation.pass_threshold", 60)
	v.SetDefault("evaluation.cache_ttl", "5m")
	v.SetDefault("evaluation.lock_backend", LockBackendMemory)
	v.SetDefault("evaluation.lock_wait", "5s")
	v.SetDefault("evaluation.lock_ttl", "15s")
	v.SetDefault("evaluation.submit_rate_limit", 30)
	v.SetDefault("evaluation.submit_rate_window", "1m")
	v.SetDefault("seed.enabled", false)

	keepalive, err := parseDuration(v, "events.stream_keepalive", "30s")
	if err != nil {
		return Config{}, fmt.Errorf("invalid stream keepalive: %w", err)
	}
	cacheTTL, err := parseDuration(v, "evaluation.cache_ttl", "5m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid evaluation cache ttl: %w", err)
	}
	lockWait, err := parseDuration(v, "evaluation.lock_wait", "5s")
	if err != nil {
		return Config{}, fmt.Errorf("invalid evaluation lock wait: %w", err)
	}
	lockTTL, err := parseDuration(v, "evaluation.lock_ttl", "15s")
	if err != nil {
		return Config{}, fmt.Errorf("invalid evaluation lock ttl: %w", err)
	}
	rateWindow, err := parseDuration(v, "evaluation.submit_rate_window", "1m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid submit rate window: %w", err)
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		EventsChannel:      v.GetString("events.channel"),
		StreamKeepalive:    keepalive,
		JWTSecret:          v.GetString("jwt.secret"),
		PassThreshold:      v.GetFloat64("evaluation.pass_threshold"),
		EvaluationCacheTTL: cacheTTL,
		LockBackend:        strings.ToLower(strings.TrimSpace(v.GetString("evaluation.lock_backend"))),
		LockWait:           lockWait,
		LockTTL:            lockTTL,
		SubmitRateLimit:    v.GetInt("evaluation.submit_rate_limit"),
		SubmitRateWindow:   rateWindow,
		SeedFile:           v.GetString("seed.file"),
		SeedEnabled:        v.GetBool("seed.enabled"),
		SeedToken:          v.GetString("seed.token"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.PassThreshold <= 0 || cfg.PassThreshold > 100 {
		return Config{}, fmt.Errorf("evaluation pass threshold must be within (0, 100], got %v", cfg.PassThreshold)
	}

	if cfg.SeedEnabled && strings.TrimSpace(cfg.SeedToken) == "" {
		return Config{}, fmt.Errorf("seed endpoint requires CERTEVAL_SEED_TOKEN")
	}

	switch cfg.LockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis lock backend requires CERTEVAL_REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown evaluation lock backend %q", cfg.LockBackend)
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
