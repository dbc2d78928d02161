package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/EvanMarlow/gatehouse/internal/auth"
	"github.com/EvanMarlow/gatehouse/internal/config"
	"github.com/EvanMarlow/gatehouse/internal/database"
	"github.com/EvanMarlow/gatehouse/internal/handlers"
	middlewareCustom "github.com/EvanMarlow/gatehouse/internal/middleware"
	"github.com/EvanMarlow/gatehouse/internal/routes"
	"github.com/EvanMarlow/gatehouse/internal/security"
	"github.com/EvanMarlow/gatehouse/internal/services"
	pkghttp "github.com/EvanMarlow/gatehouse/pkg/http"
	pkglogger "github.com/EvanMarlow/gatehouse/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendVerificationEmail records the email
func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      email,
		Subject: "Verify your email address",
		Body:    "Verification token: " + token,
	})
	return nil
}

// SendPasswordResetEmail records the email
func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      email,
		Subject: "Reset your password",
		Body:    "Reset token: " + token,
	})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// ExtractToken pulls the token out of a captured email body.
func (e *SentEmail) ExtractToken() string {
	idx := strings.LastIndex(e.Body, ": ")
	if idx == -1 {
		return ""
	}
	return e.Body[idx+2:]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	Pool         *database.DB
	EmailService *MockEmailService
	Config       *config.Config

	// Dependency references for inspection in tests
	Guard  *security.LoginGuard
	Tokens *security.TokenStore
	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			CleanupInterval:    1 * time.Hour,
		},
		Security: config.SecurityConfig{
			MaxAttemptsPerIP:             10,
			IPWindow:                     15 * time.Minute,
			MaxAccountFailures:           5,
			LockoutDuration:              15 * time.Minute,
			CleanupInterval:              5 * time.Minute,
			PasswordResetTokenExpiry:     1 * time.Hour,
			EmailVerificationTokenExpiry: 24 * time.Hour,
			AttemptRetention:             30 * 24 * time.Hour,
		},
		Email: config.EmailConfig{
			FromAddress:          "noreply@test.local",
			VerificationURLBase:  "http://localhost:3000/verify",
			PasswordResetURLBase: "http://localhost:3000/reset",
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	userRepo, revokeRepo, loginAttemptRepo := InitializeRepositories(db)

	mockEmail := &MockEmailService{
		SentEmails: []SentEmail{},
	}

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	guard, err := security.NewLoginGuard(security.LoginGuardConfig{
		MaxAttemptsPerIP:   cfg.Security.MaxAttemptsPerIP,
		IPWindow:           cfg.Security.IPWindow,
		MaxAccountFailures: cfg.Security.MaxAccountFailures,
		LockoutDuration:    cfg.Security.LockoutDuration,
		CleanupInterval:    cfg.Security.CleanupInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create login guard: %w", err)
	}

	tokenStore, err := security.NewTokenStore(security.TokenStoreConfig{
		PasswordResetExpiry:     cfg.Security.PasswordResetTokenExpiry,
		EmailVerificationExpiry: cfg.Security.EmailVerificationTokenExpiry,
		CleanupInterval:         cfg.Security.CleanupInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	emailVerificationService := services.NewEmailVerificationService(
		userRepo,
		tokenStore,
		mockEmail,
		logger,
	)
	passwordResetService := services.NewPasswordResetService(
		userRepo,
		tokenStore,
		mockEmail,
		logger,
		auditLogger,
	)

	userService := services.NewUserService(userRepo, loginAttemptRepo, logger)
	authService := services.NewAuthService(
		userRepo,
		tokenManager,
		revokeRepo,
		loginAttemptRepo,
		guard,
		logger,
		auditLogger,
		cfg.Security.AttemptRetention,
	)

	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	userHandler := handlers.NewUserHandler(userService)
	authHandler := handlers.NewAuthHandler(authService, emailVerificationService, passwordResetService, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Loose IP limit so multi-step test flows do not trip it
	routes.RegisterRoutes(r, userHandler, authHandler, tokenManager, userRepo, revokeRepo,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 100})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		Pool:         db,
		EmailService: mockEmail,
		Config:       cfg,
		Guard:        guard,
		Tokens:       tokenStore,
		logger:       logger,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts access/refresh tokens from auth response
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken string, err error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	if access, ok := authResp["access_token"].(string); ok {
		accessToken = access
	}
	if refresh, ok := authResp["refresh_token"].(string); ok {
		refreshToken = refresh
	}

	return
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
