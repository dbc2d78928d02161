package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EvanMarlow/gatehouse/internal/auth"
	"github.com/EvanMarlow/gatehouse/internal/models"
	"github.com/EvanMarlow/gatehouse/internal/services"
	pkghttp "github.com/EvanMarlow/gatehouse/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithBearerToken stores the raw token in context the way AuthMiddleware does
func WithBearerToken(req *http.Request, token string) *http.Request {
	ctx := context.WithValue(req.Context(), auth.TokenContextKey, token)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc        func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error)
	RegisterFunc     func(ctx context.Context, email, password, name string) (*models.User, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	LogoutFunc       func(ctx context.Context, accessToken string) error
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshTokenFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, accessToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, accessToken)
}

// MockEmailVerificationService for testing
type MockEmailVerificationService struct {
	SendVerificationEmailFunc func(ctx context.Context, userID, email string) error
	VerifyEmailFunc           func(ctx context.Context, token, email string) error
	ResendVerificationFunc    func(ctx context.Context, email string) error
	GetStatusFunc             func(ctx context.Context, userID string) (bool, error)
}

func (m *MockEmailVerificationService) SendVerificationEmail(ctx context.Context, userID, email string) error {
	if m.SendVerificationEmailFunc == nil {
		return nil
	}
	return m.SendVerificationEmailFunc(ctx, userID, email)
}

func (m *MockEmailVerificationService) VerifyEmail(ctx context.Context, token, email string) error {
	if m.VerifyEmailFunc == nil {
		return models.ErrUnauthorized
	}
	return m.VerifyEmailFunc(ctx, token, email)
}

func (m *MockEmailVerificationService) ResendVerification(ctx context.Context, email string) error {
	if m.ResendVerificationFunc == nil {
		return nil
	}
	return m.ResendVerificationFunc(ctx, email)
}

func (m *MockEmailVerificationService) GetStatus(ctx context.Context, userID string) (bool, error) {
	if m.GetStatusFunc == nil {
		return false, nil
	}
	return m.GetStatusFunc(ctx, userID)
}

// MockPasswordResetService for testing
type MockPasswordResetService struct {
	RequestResetFunc func(ctx context.Context, email string) error
	ConfirmResetFunc func(ctx context.Context, token, email, newPassword string) error
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email string) error {
	if m.RequestResetFunc == nil {
		return nil
	}
	return m.RequestResetFunc(ctx, email)
}

func (m *MockPasswordResetService) ConfirmReset(ctx context.Context, token, email, newPassword string) error {
	if m.ConfirmResetFunc == nil {
		return models.ErrUnauthorized
	}
	return m.ConfirmResetFunc(ctx, token, email, newPassword)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc func(ctx context.Context, id string) (*models.User, error)
	ListUsersFunc   func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUserFunc  func(ctx context.Context, user *models.User, password string) (*models.User, error)
	UpdateUserFunc  func(ctx context.Context, id string, user *models.User) (*models.User, error)
	DeleteUserFunc  func(ctx context.Context, id string) error

	GetLoginActivityFunc func(ctx context.Context, id string) (*models.LoginActivity, error)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) CreateUser(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(ctx, user, password)
}

func (m *MockUserService) UpdateUser(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateUserFunc(ctx, id, user)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, id)
}

func (m *MockUserService) GetLoginActivity(ctx context.Context, id string) (*models.LoginActivity, error) {
	if m.GetLoginActivityFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetLoginActivityFunc(ctx, id)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
