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
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	MongoURI           string
	MongoDB            string
	JWTSecret          string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannel       string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	StoreTimeout       time.Duration
	WSAllowedOrigins   []string
	WSPingInterval     time.Duration
	WSPongWait         time.Duration
	PresenceTTL        time.Duration
}

// LoadDotEnv reads .env.<APP_ENV> and .env into the process environment
// without overriding variables that are already set. Missing files are fine.
func LoadDotEnv() error {
	env := getEnv("APP_ENV", "dev")
	for _, name := range []string{".env." + env, ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "marketplace"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisChannel:     getEnv("REDIS_CHANNEL", "marketchat:push"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		WSAllowedOrigins: splitList(getEnv("WS_ALLOWED_ORIGINS", "*")),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
	}

	var err error
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval, err = parseDurationEnv("WS_PING_INTERVAL", 25*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WSPongWait, err = parseDurationEnv("WS_PONG_WAIT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PresenceTTL, err = parseDurationEnv("PRESENCE_TTL", 90*time.Second); err != nil {
		return Config{}, err
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	if cfg.WSPingInterval >= cfg.WSPongWait {
		return Config{}, fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", cfg.WSPingInterval, cfg.WSPongWait)
	}
	if cfg.JWTSecret == "" && !cfg.IsDevelopment() {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// IsDevelopment reports whether the process runs locally or under tests.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "local", "test", "testing":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}
