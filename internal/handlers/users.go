package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/EvanMarlow/gatehouse/internal/auth"
	"github.com/EvanMarlow/gatehouse/internal/models"
	pkgauth "github.com/EvanMarlow/gatehouse/pkg/auth"
	pkghttp "github.com/EvanMarlow/gatehouse/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUser(ctx context.Context, user *models.User, password string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, user *models.User) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	GetLoginActivity(ctx context.Context, id string) (*models.LoginActivity, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Request/Response DTOs

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name string `json:"name" validate:"omitempty,min=1"`
	Role string `json:"role" validate:"omitempty,oneof=user admin"`
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	EmailVerified bool     `json:"email_verified"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// ListUsersResponse represents a list of users
type ListUsersResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}

// LoginActivityResponse summarizes recent login attempts for a user
type LoginActivityResponse struct {
	FailedAttempts int     `json:"failed_attempts"`
	WindowSeconds  int64   `json:"window_seconds"`
	LastSuccessAt  *string `json:"last_success_at"`
}

// toUserResponse converts a user model to a response DTO
func toUserResponse(user *models.User) *UserResponse {
	permissions := user.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return &UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		Role:          user.Role,
		Permissions:   permissions,
		Status:        user.Status,
		CreatedAt:     user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:     user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// GetUser retrieves a user by ID
//
// @Summary Get user by ID
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "Forbidden: you cannot access this resource")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// ListUsers retrieves a list of users with pagination
//
// @Summary List users
// @Param limit query int false "Limit (default 10)" default(10)
// @Param offset query int false "Offset (default 0)" default(0)
// @Produce json
// @Success 200 {object} ListUsersResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 10
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if err := parseIntParam(l, &limit, 1, 100); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if err := parseIntParam(o, &offset, 0, 10000); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
	}

	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	response := &ListUsersResponse{
		Users: make([]*UserResponse, len(users)),
		Total: len(users),
	}

	for i, user := range users {
		response.Users[i] = toUserResponse(user)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// CreateUser creates a new user
//
// @Summary Create a new user
// @Accept json
// @Param request body CreateUserRequest true "Create user request"
// @Produce json
// @Success 201 {object} UserResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user := &models.User{
		Email: req.Email,
		Name:  strings.TrimSpace(req.Name),
		Role:  req.Role,
	}

	if user.Role == "" {
		user.Role = "user"
	}

	createdUser, err := h.service.CreateUser(r.Context(), user, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "User already exists")
			return
		}
		var pwErr *pkgauth.PasswordValidationError
		if errors.As(err, &pwErr) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUserResponse(createdUser))
}

// UpdateUser updates an existing user
//
// @Summary Update a user
// @Param id path string true "User ID"
// @Accept json
// @Param request body UpdateUserRequest true "Update user request"
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "Forbidden: you cannot access this resource")
		return
	}

	var req UpdateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user := &models.User{
		ID: userID,
	}

	if req.Name != "" {
		user.Name = strings.TrimSpace(req.Name)
	}

	if req.Role != "" {
		user.Role = req.Role
	}

	updatedUser, err := h.service.UpdateUser(r.Context(), userID, user)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(updatedUser))
}

// DeleteUser deletes a user
//
// @Summary Delete a user
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	err := h.service.DeleteUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetLoginActivity reports recent failed logins and the last successful login
// for a user, read from the audit trail
//
// @Summary Get login activity for a user
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} LoginActivityResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /users/{id}/login-activity [get]
func (h *UserHandler) GetLoginActivity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	activity, err := h.service.GetLoginActivity(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := &LoginActivityResponse{
		FailedAttempts: activity.FailedAttempts,
		WindowSeconds:  int64(activity.Window.Seconds()),
	}
	if activity.LastSuccessAt != nil {
		formatted := activity.LastSuccessAt.Format("2006-01-02T15:04:05Z07:00")
		resp.LastSuccessAt = &formatted
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Helper functions

// checkUserAccess verifies that the authenticated user can access the requested
// resource. Access is granted when the user targets their own record or holds
// the admin role.
func (h *UserHandler) checkUserAccess(r *http.Request, requestedUserID string) error {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		return errors.New("user not found in context")
	}

	if claims.UserID == requestedUserID {
		return nil
	}

	user, err := h.service.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return err
	}

	if user.Role == "admin" {
		return nil
	}

	return errors.New("insufficient permissions")
}

// parseIntParam parses and range-checks an integer query parameter
func parseIntParam(value string, dest *int, min, max int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}

	if n < min || n > max {
		return errors.New("parameter out of range")
	}

	*dest = n
	return nil
}
