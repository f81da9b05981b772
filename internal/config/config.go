// README: Config loader with env defaults for HTTP, stores, Firebase, Kafka and ride timers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory" // local development only
)

type RideConfig struct {
	Backend        string
	NormalTimeout  time.Duration
	VIPTimeout     time.Duration
	AdvanceTimeout time.Duration
	SweepInterval  time.Duration
}

type DispatchConfig struct {
	GraceWindow time.Duration
}

type Config struct {
	HTTP struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
		DriverTopic     string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Identity struct {
		EmailDomain string
	}
	Ride     RideConfig
	Dispatch DispatchConfig
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("QA_HTTP_ADDR", ":8080")
	cfg.Log.Level = envOrDefault("QA_LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("QA_LOG_FORMAT", "json")
	cfg.DB.DSN = os.Getenv("QA_DB_DSN")
	cfg.Redis.Addr = os.Getenv("QA_REDIS_ADDR")
	cfg.Firebase.ProjectID = os.Getenv("QA_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("QA_FIREBASE_CREDENTIALS_FILE")
	cfg.Firebase.DriverTopic = envOrDefault("QA_DRIVER_TOPIC", "drivers")
	cfg.Kafka.Brokers = envList("QA_KAFKA_BROKERS")
	cfg.Kafka.Topic = envOrDefault("QA_KAFKA_TOPIC", "ride-events")
	cfg.Identity.EmailDomain = envOrDefault("QA_EMAIL_DOMAIN", "quickauto.com")

	cfg.Ride.Backend = strings.ToLower(envOrDefault("QA_RIDE_BACKEND", BackendFirestore))
	cfg.Ride.NormalTimeout = envSeconds("QA_NORMAL_TIMEOUT_SECONDS", 30)
	cfg.Ride.VIPTimeout = envSeconds("QA_VIP_TIMEOUT_SECONDS", 30)
	cfg.Ride.AdvanceTimeout = envSeconds("QA_ADVANCE_TIMEOUT_SECONDS", 60)
	cfg.Ride.SweepInterval = envSeconds("QA_SWEEP_INTERVAL_SECONDS", 5)
	cfg.Dispatch.GraceWindow = envSeconds("QA_GRACE_WINDOW_SECONDS", 5)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Ride.Backend {
	case BackendFirestore, BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("config: QA_DB_DSN is required for the %s ride backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("config: unknown ride backend %q", c.Ride.Backend)
	}
	durations := map[string]time.Duration{
		"QA_NORMAL_TIMEOUT_SECONDS":  c.Ride.NormalTimeout,
		"QA_VIP_TIMEOUT_SECONDS":     c.Ride.VIPTimeout,
		"QA_ADVANCE_TIMEOUT_SECONDS": c.Ride.AdvanceTimeout,
		"QA_SWEEP_INTERVAL_SECONDS":  c.Ride.SweepInterval,
		"QA_GRACE_WINDOW_SECONDS":    c.Dispatch.GraceWindow,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", key)
		}
	}
	if c.Firebase.ProjectID == "" {
		return fmt.Errorf("config: QA_FIREBASE_PROJECT_ID is required")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return -1
	}
	return def
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envOrDefaultInt(key, def)) * time.Second
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
