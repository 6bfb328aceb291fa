package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/stallpos/auth-service/docs"
	"github.com/stallpos/auth-service/internal/api/handler"
	"github.com/stallpos/auth-service/internal/api/middleware"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

// Dependencies groups what the router needs.
type Dependencies struct {
	Auth       ports.AuthService
	Recovery   ports.RecoveryService
	// Readiness lists the store checks behind /health/ready; empty when
	// everything runs in memory.
	Readiness  []handler.ReadinessCheck
	Log        zerolog.Logger
	// Registerer receives the HTTP request metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "stallauth",
		Registerer: deps.Registerer,
	}))

	authHandler := handler.NewAuthHandler(deps.Auth)
	recoveryHandler := handler.NewRecoveryHandler(deps.Recovery)
	requireAuth := middleware.Auth(deps.Auth)

	v1 := e.Group("/v1")

	// --- Auth routes ---
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/logout", authHandler.Logout, requireAuth)
	v1.GET("/auth/me", authHandler.Me, requireAuth)
	v1.POST("/auth/password", authHandler.ChangePassword, requireAuth)
	v1.PUT("/auth/recovery", authHandler.UpdateRecovery, requireAuth)

	// --- Admin routes ---
	v1.POST("/users", authHandler.Register, requireAuth, middleware.RBAC(domain.RoleAdmin))

	// --- Recovery routes (no auth required) ---
	v1.POST("/recovery/code", recoveryHandler.RequestCode)
	v1.POST("/recovery/code/verify", recoveryHandler.VerifyCode)
	v1.POST("/recovery/reset", recoveryHandler.ResetWithToken)
	v1.POST("/recovery/contact", recoveryHandler.ResetByContact)
	v1.POST("/recovery/secret-word", recoveryHandler.ResetWithSecretWord)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewReadinessHandler(deps.Readiness...)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Observability ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
