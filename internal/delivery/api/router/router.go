// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"portal/internal/delivery/api/middleware"
	"portal/internal/delivery/api/router/handler"
	"portal/internal/domain/entity"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler         *handler.AuthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	authMiddleware *middleware.AuthMiddleware
	rateLimit      *middleware.RateLimitMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		authMiddleware: params.AuthMiddleware,
		rateLimit:      params.RateLimitMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
// Login, registration, 2FA verification and password reset are rate limited inside the
// usecase, so only authenticated mutations get the generic mutation bucket here.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.HealthCheck)

	authGroup := e.Group("/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/2fa/verify", r.authHandler.VerifyTwoFactor)
		authGroup.POST("/refresh", r.authHandler.Refresh)
		authGroup.POST("/password/reset-request", r.authHandler.RequestPasswordReset)
		authGroup.POST("/password/reset", r.authHandler.ResetPassword)
	}

	accountGroup := e.Group("/auth")
	accountGroup.Use(r.authMiddleware.Authenticate)
	{
		accountGroup.GET("/me", r.authHandler.Me)

		mutations := accountGroup.Group("", r.rateLimit.Limit(entity.BucketMutation))
		mutations.POST("/logout", r.authHandler.Logout)
		mutations.POST("/2fa/setup", r.authHandler.SetupTwoFactor)
		mutations.POST("/2fa/enable", r.authHandler.EnableTwoFactor)
		mutations.POST("/2fa/disable", r.authHandler.DisableTwoFactor)
		mutations.POST("/password/change", r.authHandler.ChangePassword)
	}

	adminGroup := e.Group("/admin")
	adminGroup.Use(r.authMiddleware.Authenticate)
	adminGroup.Use(r.authMiddleware.RequireRole(entity.RoleAdmin))
	adminGroup.Use(r.rateLimit.Limit(entity.BucketMutation))
	{
		adminGroup.POST("/accounts/:id/revoke-sessions", r.authHandler.RevokeSessions)
	}
}
