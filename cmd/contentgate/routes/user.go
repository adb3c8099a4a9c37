package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/cmd/contentgate/container"
	"github.com/walrusgate/contentgate/cmd/contentgate/handlers"
	"github.com/walrusgate/contentgate/cmd/contentgate/middleware"
)

// RegisterUserRoutes registers wallet login and profile routes
func RegisterUserRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUserHandler(c.IdentityService, c.Components.Logger)

	users := e.Group("/api/v1/users")
	users.Use(middleware.ResolveIdentity(c.IdentityService, c.Components.Config.Auth.CookieName, c.Components.Logger))
	{
		users.POST("/login", h.Login)           // POST /api/v1/users/login
		users.POST("/profile", h.LookupProfile) // POST /api/v1/users/profile
		users.GET("/me", h.Profile)             // GET /api/v1/users/me
		users.PUT("/me", h.UpdateProfile)       // PUT /api/v1/users/me
	}
}
