package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("DACHIDO_AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.TokenTTL != "30m" {
		t.Errorf("TokenTTL = %q, want %q", cfg.TokenTTL, "30m")
	}
	if cfg.Production() {
		t.Error("default environment should not be production")
	}
	if cfg.LoginRatePerMinute != 30 {
		t.Errorf("LoginRatePerMinute = %d, want 30", cfg.LoginRatePerMinute)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("DACHIDO_AUTH_SECRET", "test-secret")
	os.Setenv("DACHIDO_ADDR", ":9090")
	os.Setenv("DACHIDO_ENV", "production")
	os.Setenv("DACHIDO_LOGIN_RATE_PER_MINUTE", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":9090")
	}
	if !cfg.Production() {
		t.Error("expected production environment")
	}
	if cfg.LoginRatePerMinute != 5 {
		t.Errorf("LoginRatePerMinute = %d, want 5", cfg.LoginRatePerMinute)
	}
}

func TestLoad_SecretRequired(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should fail without DACHIDO_AUTH_SECRET")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestTokenLifetime(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
		{"invalid", 30 * time.Minute},
		{"0", 30 * time.Minute},
		{"-5m", 30 * time.Minute},
	}
	for _, tc := range cases {
		os.Clearenv()
		os.Setenv("DACHIDO_AUTH_SECRET", "test-secret")
		os.Setenv("DACHIDO_TOKEN_TTL", tc.value)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load with ttl %q: %v", tc.value, err)
		}
		if got := cfg.TokenLifetime(); got != tc.want {
			t.Errorf("TokenLifetime(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
