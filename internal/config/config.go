package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	CleanupInterval    time.Duration
}

// SecurityConfig drives the in-memory login guard and token store.
type SecurityConfig struct {
	MaxAttemptsPerIP             int
	IPWindow                     time.Duration
	MaxAccountFailures           int
	LockoutDuration              time.Duration
	CleanupInterval              time.Duration
	PasswordResetTokenExpiry     time.Duration
	EmailVerificationTokenExpiry time.Duration
	AttemptRetention             time.Duration // how long audit rows are kept
}

type EmailConfig struct {
	AWSRegion            string
	FromAddress          string
	VerificationURLBase  string
	PasswordResetURLBase string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCommaList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			CleanupInterval:    getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Security: SecurityConfig{
			MaxAttemptsPerIP:             getEnvAsInt("MAX_ATTEMPTS_PER_IP", 10),
			IPWindow:                     getEnvAsDuration("IP_RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxAccountFailures:           getEnvAsInt("MAX_ACCOUNT_FAILURES", 5),
			LockoutDuration:              getEnvAsDuration("ACCOUNT_LOCKOUT_DURATION", 15*time.Minute),
			CleanupInterval:              getEnvAsDuration("SECURITY_CLEANUP_INTERVAL", 5*time.Minute),
			PasswordResetTokenExpiry:     getEnvAsDuration("PASSWORD_RESET_TOKEN_EXPIRY", 1*time.Hour),
			EmailVerificationTokenExpiry: getEnvAsDuration("EMAIL_VERIFICATION_TOKEN_EXPIRY", 24*time.Hour),
			AttemptRetention:             getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 30*24*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
			FromAddress:          getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			VerificationURLBase:  getEnv("EMAIL_VERIFICATION_URL_BASE", "http://localhost:8080/verify-email"),
			PasswordResetURLBase: getEnv("PASSWORD_RESET_URL_BASE", "http://localhost:8080/reset-password"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := validateSecurity(&cfg.Security); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// validateSecurity rejects configurations the login guard and token store
// would refuse at construction, so misconfiguration fails at startup.
func validateSecurity(sec *SecurityConfig) error {
	if sec.MaxAttemptsPerIP < 1 {
		return fmt.Errorf("MAX_ATTEMPTS_PER_IP must be at least 1")
	}
	if sec.IPWindow <= 0 {
		return fmt.Errorf("IP_RATE_LIMIT_WINDOW must be positive")
	}
	if sec.MaxAccountFailures < 1 {
		return fmt.Errorf("MAX_ACCOUNT_FAILURES must be at least 1")
	}
	if sec.LockoutDuration <= 0 {
		return fmt.Errorf("ACCOUNT_LOCKOUT_DURATION must be positive")
	}
	if sec.PasswordResetTokenExpiry <= 0 || sec.EmailVerificationTokenExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
