package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/cmd/contentgate/container"
	"github.com/walrusgate/contentgate/cmd/contentgate/handlers"
	"github.com/walrusgate/contentgate/cmd/contentgate/middleware"
)

// RegisterAPIKeyRoutes registers API key management routes
func RegisterAPIKeyRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAPIKeyHandler(c.IdentityService, c.Components.Logger)

	keys := e.Group("/api/v1/apikeys")
	keys.Use(middleware.ResolveIdentity(c.IdentityService, c.Components.Config.Auth.CookieName, c.Components.Logger))
	{
		keys.POST("", h.Create)       // POST /api/v1/apikeys
		keys.GET("", h.List)          // GET /api/v1/apikeys
		keys.DELETE("/:id", h.Delete) // DELETE /api/v1/apikeys/{id}
	}
}
