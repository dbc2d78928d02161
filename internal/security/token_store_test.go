package security_test

import (
	"testing"
	"time"

	"github.com/EvanMarlow/gatehouse/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenStore(t *testing.T, clock *fakeClock) *security.TokenStore {
	t.Helper()
	store, err := security.NewTokenStore(security.TokenStoreConfig{
		PasswordResetExpiry:     time.Hour,
		EmailVerificationExpiry: 24 * time.Hour,
		CleanupInterval:         5 * time.Minute,
	}, testLogger(), security.WithTokenStoreClock(clock.Now))
	require.NoError(t, err)
	return store
}

func TestNewTokenStore_RejectsInvalidConfig(t *testing.T) {
	_, err := security.NewTokenStore(security.TokenStoreConfig{
		PasswordResetExpiry:     0,
		EmailVerificationExpiry: time.Hour,
	}, testLogger())
	assert.Error(t, err)

	_, err = security.NewTokenStore(security.TokenStoreConfig{
		PasswordResetExpiry:     time.Hour,
		EmailVerificationExpiry: -time.Minute,
	}, testLogger())
	assert.Error(t, err)
}

func TestTokenStoreCreatePasswordResetToken_ReturnsURLSafeToken(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	token, err := store.CreatePasswordResetToken("a@b.com")

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	// 32 random bytes base64-encoded: long enough for 256 bits of entropy.
	assert.GreaterOrEqual(t, len(token), 43)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}

func TestTokenStoreValidatePasswordResetToken_AcceptsLiveToken(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	token, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)

	assert.True(t, store.ValidatePasswordResetToken(token, "a@b.com"))
	// Validation is a peek, not a commit: it may repeat.
	assert.True(t, store.ValidatePasswordResetToken(token, "a@b.com"))
}

func TestTokenStoreValidatePasswordResetToken_CaseInsensitiveEmail(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	token, err := store.CreatePasswordResetToken("A@B.com")
	require.NoError(t, err)

	assert.True(t, store.ValidatePasswordResetToken(token, "a@b.COM"))
}

func TestTokenStoreValidate_RejectsWrongEmail(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	token, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)

	assert.False(t, store.ValidatePasswordResetToken(token, "someone-else@b.com"))
}

func TestTokenStoreValidate_RejectsUnknownToken(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	assert.False(t, store.ValidatePasswordResetToken("not-a-real-token", "a@b.com"))
}

func TestTokenStoreValidate_PurposeIsolation(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	token, err := store.CreateEmailVerificationToken("a@b.com")
	require.NoError(t, err)

	assert.True(t, store.ValidateEmailVerificationToken(token, "a@b.com"))
	assert.False(t, store.ValidatePasswordResetToken(token, "a@b.com"))
}

func TestTokenStoreValidate_RejectsAndDeletesExpiredToken(t *testing.T) {
	clock := newFakeClock()
	store := newTestTokenStore(t, clock)

	token, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	assert.False(t, store.ValidatePasswordResetToken(token, "a@b.com"))

	// The expired entry was removed on sight, so even a later consume
	// finds nothing.
	email, ok := store.ConsumeToken(token)
	assert.False(t, ok)
	assert.Empty(t, email)
}

func TestTokenStoreCreate_SecondTokenInvalidatesFirst(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	first, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)
	second, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.False(t, store.ValidatePasswordResetToken(first, "a@b.com"))
	assert.True(t, store.ValidatePasswordResetToken(second, "a@b.com"))
}

func TestTokenStoreCreate_DifferentPurposesCoexist(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	reset, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)
	verify, err := store.CreateEmailVerificationToken("a@b.com")
	require.NoError(t, err)

	// Issuing a verification token must not invalidate the reset token.
	assert.True(t, store.ValidatePasswordResetToken(reset, "a@b.com"))
	assert.True(t, store.ValidateEmailVerificationToken(verify, "a@b.com"))
}

func TestTokenStoreConsumeToken_ReturnsEmailOnce(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	token, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)

	email, ok := store.ConsumeToken(token)
	assert.True(t, ok)
	assert.Equal(t, "a@b.com", email)

	email, ok = store.ConsumeToken(token)
	assert.False(t, ok)
	assert.Empty(t, email)
}

func TestTokenStoreConsumeToken_ExpiredAtConsumptionTime(t *testing.T) {
	clock := newFakeClock()
	store := newTestTokenStore(t, clock)

	token, err := store.CreatePasswordResetToken("a@b.com")
	require.NoError(t, err)

	// Valid when validated...
	require.True(t, store.ValidatePasswordResetToken(token, "a@b.com"))

	// ...but expiry passes before the consume commits.
	clock.Advance(time.Hour)

	email, ok := store.ConsumeToken(token)
	assert.False(t, ok)
	assert.Empty(t, email)
}

func TestTokenStoreConsumeToken_UnknownToken(t *testing.T) {
	store := newTestTokenStore(t, newFakeClock())

	email, ok := store.ConsumeToken("never-issued")
	assert.False(t, ok)
	assert.Empty(t, email)
}

func TestTokenStore_SweepRemovesExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	store, err := security.NewTokenStore(security.TokenStoreConfig{
		PasswordResetExpiry:     time.Hour,
		EmailVerificationExpiry: time.Hour,
		CleanupInterval:         time.Minute,
	}, testLogger(), security.WithTokenStoreClock(clock.Now))
	require.NoError(t, err)

	stale, err := store.CreatePasswordResetToken("old@example.com")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	// Any store operation past the cleanup interval triggers the sweep.
	_, err = store.CreateEmailVerificationToken("new@example.com")
	require.NoError(t, err)

	_, ok := store.ConsumeToken(stale)
	assert.False(t, ok)
}
