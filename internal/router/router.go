// Package router maps HTTP routes onto handlers and applies the auth
// middleware per group.  Three surfaces: public (health, availability),
// customer (own reservations) and staff (front desk).
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gambinos/reservation-book/internal/handler"
	"github.com/gambinos/reservation-book/internal/middleware"
	"github.com/gambinos/reservation-book/internal/model"
)

// RegisterPublic registers the unauthenticated routes: the health check
// and the availability grid guests browse before registering.  The
// response cache applies to the grid only; authenticated surfaces are
// never cached.
func RegisterPublic(e *echo.Echo, av *handler.AvailabilityHandler, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/availability", av.Grid, cache)
}

// RegisterAuth registers registration, login and token lifecycle
// routes.  Logout deliberately skips the JWT middleware so expired
// sessions can still be terminated with a refresh token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterCustomer registers the self-service reservation endpoints.
// Both roles are allowed: staff tokens work everywhere a customer's
// does.
func RegisterCustomer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/reservations",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleStaff),
	)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Edit)
	g.DELETE("/:id", h.Cancel)
}

// RegisterStaff registers the front-desk endpoints under /v1/staff.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStaff),
	)
	g.POST("/reservations", h.PhoneBooking)
	g.POST("/reservations/:id/complete", h.Complete)
	g.POST("/reservations/:id/no-show", h.NoShow)
	g.POST("/sweep", h.Sweep)
	g.GET("/day/:date", h.DaySheet)
	g.GET("/customers", h.Customers)
	g.POST("/customers/:id/bar", h.Bar)
	g.POST("/customers/:id/unbar", h.Unbar)
	g.GET("/customers/history", h.History)
}
