package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)
}

func TestLoad_SecurityDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
	}{
		{"MaxAttemptsPerIP", cfg.Security.MaxAttemptsPerIP, 10},
		{"IPWindow", cfg.Security.IPWindow, 15 * time.Minute},
		{"MaxAccountFailures", cfg.Security.MaxAccountFailures, 5},
		{"LockoutDuration", cfg.Security.LockoutDuration, 15 * time.Minute},
		{"CleanupInterval", cfg.Security.CleanupInterval, 5 * time.Minute},
		{"PasswordResetTokenExpiry", cfg.Security.PasswordResetTokenExpiry, 1 * time.Hour},
		{"EmailVerificationTokenExpiry", cfg.Security.EmailVerificationTokenExpiry, 24 * time.Hour},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestLoad_SecurityCustomValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MAX_ATTEMPTS_PER_IP", "3")
	os.Setenv("IP_RATE_LIMIT_WINDOW", "60s")
	os.Setenv("MAX_ACCOUNT_FAILURES", "7")
	os.Setenv("ACCOUNT_LOCKOUT_DURATION", "900s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MaxAttemptsPerIP != 3 {
		t.Errorf("MaxAttemptsPerIP: got %d, want 3", cfg.Security.MaxAttemptsPerIP)
	}
	if cfg.Security.IPWindow != 60*time.Second {
		t.Errorf("IPWindow: got %v, want 60s", cfg.Security.IPWindow)
	}
	if cfg.Security.MaxAccountFailures != 7 {
		t.Errorf("MaxAccountFailures: got %d, want 7", cfg.Security.MaxAccountFailures)
	}
	if cfg.Security.LockoutDuration != 900*time.Second {
		t.Errorf("LockoutDuration: got %v, want 900s", cfg.Security.LockoutDuration)
	}
}

func TestLoad_RejectsInvalidSecurityConfig(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MAX_ATTEMPTS_PER_IP", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for MAX_ATTEMPTS_PER_IP=0")
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing JWT_SECRET")
	}
}

func TestLoad_RejectsWeakJWTSecretInProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	os.Setenv("JWT_SECRET", "short-secret")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for short production JWT_SECRET")
	}
}
