package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// TokenPurpose scopes a token to the workflow it was issued for.
type TokenPurpose string

const (
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
)

// TokenStoreConfig holds expiry settings for each token purpose
type TokenStoreConfig struct {
	PasswordResetExpiry     time.Duration
	EmailVerificationExpiry time.Duration
	CleanupInterval         time.Duration
}

// storedToken is the at-rest record for an issued token. Only the SHA-256
// hash of the plaintext ever enters the store; the map key is that hash.
type storedToken struct {
	email     string // lower-cased
	purpose   TokenPurpose
	createdAt time.Time
	expiresAt time.Time
}

// TokenStore issues, validates, and consumes single-use expiring secrets for
// password reset and email verification. Plaintext tokens are returned to the
// caller exactly once and never persisted, so a memory snapshot cannot be
// used to forge a valid reset or verification link. Validation is a
// non-destructive peek; ConsumeToken is the destructive commit, letting the
// calling workflow validate, apply its side effects, and only then invalidate
// the token.
//
// Like LoginGuard, this store is single-process: replace it with a shared
// TTL-capable store to run more than one instance.
type TokenStore struct {
	mu     sync.Mutex
	config TokenStoreConfig
	tokens map[string]*storedToken
	sweep  sweepGate
	logger *slog.Logger
	now    func() time.Time
}

// TokenStoreOption customizes a TokenStore at construction.
type TokenStoreOption func(*TokenStore)

// WithTokenStoreClock overrides the store's time source for tests.
func WithTokenStoreClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		s.now = now
	}
}

// NewTokenStore creates a new TokenStore
func NewTokenStore(config TokenStoreConfig, logger *slog.Logger, opts ...TokenStoreOption) (*TokenStore, error) {
	if config.PasswordResetExpiry <= 0 {
		return nil, fmt.Errorf("password reset expiry must be positive, got %s", config.PasswordResetExpiry)
	}
	if config.EmailVerificationExpiry <= 0 {
		return nil, fmt.Errorf("email verification expiry must be positive, got %s", config.EmailVerificationExpiry)
	}

	s := &TokenStore{
		config: config,
		tokens: make(map[string]*storedToken),
		sweep:  sweepGate{interval: config.CleanupInterval},
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CreatePasswordResetToken issues a new password reset token for the email.
// Any prior reset token for the same address is invalidated.
func (s *TokenStore) CreatePasswordResetToken(email string) (string, error) {
	return s.create(email, TokenPurposePasswordReset, s.config.PasswordResetExpiry)
}

// CreateEmailVerificationToken issues a new verification token for the email.
// Any prior verification token for the same address is invalidated.
func (s *TokenStore) CreateEmailVerificationToken(email string) (string, error) {
	return s.create(email, TokenPurposeEmailVerification, s.config.EmailVerificationExpiry)
}

func (s *TokenStore) create(email string, purpose TokenPurpose, expiry time.Duration) (string, error) {
	// Generate a random 32-byte token, URL-safe for use in links.
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		s.logger.Error("failed to generate random token", slog.Any("error", err))
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	plainToken := base64.URLEncoding.EncodeToString(tokenBytes)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweep(now)

	key := normalizeEmail(email)

	// At most one live token per (email, purpose): drop everything the new
	// token supersedes.
	for hash, tok := range s.tokens {
		if tok.email == key && tok.purpose == purpose {
			delete(s.tokens, hash)
		}
	}

	s.tokens[hashToken(plainToken)] = &storedToken{
		email:     key,
		purpose:   purpose,
		createdAt: now,
		expiresAt: now.Add(expiry),
	}

	s.logger.Info("token issued",
		slog.String("purpose", string(purpose)),
		slog.Time("expires_at", now.Add(expiry)))

	return plainToken, nil
}

// ValidatePasswordResetToken reports whether the token is a live password
// reset token for the given email. It does not consume the token.
func (s *TokenStore) ValidatePasswordResetToken(token, email string) bool {
	return s.validate(token, email, TokenPurposePasswordReset)
}

// ValidateEmailVerificationToken reports whether the token is a live email
// verification token for the given email. It does not consume the token.
func (s *TokenStore) ValidateEmailVerificationToken(token, email string) bool {
	return s.validate(token, email, TokenPurposeEmailVerification)
}

func (s *TokenStore) validate(token, email string, purpose TokenPurpose) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweep(now)

	hash := hashToken(token)
	tok, ok := s.tokens[hash]
	if !ok {
		return false
	}

	if !tok.expiresAt.After(now) {
		// Expired entries are removed on sight.
		delete(s.tokens, hash)
		return false
	}

	return tok.email == normalizeEmail(email) && tok.purpose == purpose
}

// ConsumeToken removes the token and returns the owning email. The email is
// returned only when the token was still live at removal time; an expired or
// unknown token yields ok=false either way. A second call for the same token
// always reports failure.
func (s *TokenStore) ConsumeToken(token string) (email string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := hashToken(token)
	tok, found := s.tokens[hash]
	if !found {
		return "", false
	}

	// Removed unconditionally: an expired entry must not linger either.
	delete(s.tokens, hash)

	if !tok.expiresAt.After(s.now()) {
		return "", false
	}

	s.logger.Info("token consumed", slog.String("purpose", string(tok.purpose)))
	return tok.email, true
}

// maybeSweep drops expired tokens, at most once per cleanup interval.
// Caller must hold s.mu.
func (s *TokenStore) maybeSweep(now time.Time) {
	if !s.sweep.due(now) {
		return
	}

	removed := 0
	for hash, tok := range s.tokens {
		if !tok.expiresAt.After(now) {
			delete(s.tokens, hash)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("swept expired tokens", slog.Int("removed", removed))
	}
}

// hashToken derives the storage key for a plaintext token. SHA-256 is enough
// here: the input has 256 bits of entropy, so offline guessing is not a
// concern the way it is for passwords.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}
