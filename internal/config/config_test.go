// README: Config loading tests (defaults, overrides and validation).
package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("QA_FIREBASE_PROJECT_ID", "quickauto-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Ride.Backend != BackendFirestore {
		t.Errorf("backend = %q", cfg.Ride.Backend)
	}
	if cfg.Ride.NormalTimeout != 30*time.Second || cfg.Ride.VIPTimeout != 30*time.Second {
		t.Errorf("normal/vip timeout = %v/%v", cfg.Ride.NormalTimeout, cfg.Ride.VIPTimeout)
	}
	if cfg.Ride.AdvanceTimeout != 60*time.Second {
		t.Errorf("advance timeout = %v", cfg.Ride.AdvanceTimeout)
	}
	if cfg.Dispatch.GraceWindow != 5*time.Second {
		t.Errorf("grace window = %v", cfg.Dispatch.GraceWindow)
	}
	if cfg.Identity.EmailDomain != "quickauto.com" {
		t.Errorf("email domain = %q", cfg.Identity.EmailDomain)
	}
}

func TestLoadKafkaBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("QA_KAFKA_BROKERS", "k1:9092, k2:9092,,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"QA_RIDE_BACKEND": "mongo"}},
		{"postgres without dsn", map[string]string{"QA_RIDE_BACKEND": "postgres"}},
		{"zero timeout", map[string]string{"QA_VIP_TIMEOUT_SECONDS": "0"}},
		{"garbage timeout", map[string]string{"QA_ADVANCE_TIMEOUT_SECONDS": "soon"}},
		{"missing project", map[string]string{"QA_FIREBASE_PROJECT_ID": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
