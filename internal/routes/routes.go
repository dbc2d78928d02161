package routes

import (
	"github.com/EvanMarlow/gatehouse/internal/auth"
	"github.com/EvanMarlow/gatehouse/internal/handlers"
	"github.com/EvanMarlow/gatehouse/internal/middleware"
	"github.com/EvanMarlow/gatehouse/internal/repositories"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	userHandler *handlers.UserHandler,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
	revokeRepo *repositories.TokenRevocationRepository,
	authRateLimit middleware.RateLimitConfig,
) {
	userRateLimits := middleware.DefaultAuthenticatedRateLimit()

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authRateLimit))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.RefreshToken)
		r.Post("/auth/password-reset", authHandler.RequestPasswordReset)
		r.Post("/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)
		r.Post("/auth/verify-email", authHandler.VerifyEmail)
		r.Post("/auth/resend-verification", authHandler.ResendVerification)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager, revokeRepo))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/verification-status", authHandler.VerificationStatus)

		// Any authenticated user; ownership is checked in the handler
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByUserID(userRateLimits, "read"))
			r.Get("/users/{id}", userHandler.GetUser)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByUserID(userRateLimits, "write"))
			r.Put("/users/{id}", userHandler.UpdateUser)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))
			r.Use(middleware.RateLimitByUserID(userRateLimits, "admin"))

			r.Get("/users", userHandler.ListUsers)
			r.Post("/users", userHandler.CreateUser)
			r.Delete("/users/{id}", userHandler.DeleteUser)
			r.Get("/users/{id}/login-activity", userHandler.GetLoginActivity)
		})
	})
}
