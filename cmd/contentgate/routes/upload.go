package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/cmd/contentgate/container"
	"github.com/walrusgate/contentgate/cmd/contentgate/handlers"
	"github.com/walrusgate/contentgate/cmd/contentgate/middleware"
	commonmw "github.com/walrusgate/contentgate/common/middleware"
)

// RegisterUploadRoutes registers the content registry and unlock routes
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUploadHandler(c.UploadService, c.UnlockService, c.Components.Logger)

	unlock := []echo.MiddlewareFunc{}
	if c.RateLimiter != nil {
		unlock = append(unlock, commonmw.RateLimitMiddleware(c.RateLimiter, c.UnlockLimit, middleware.GetIdentity))
	}

	uploads := e.Group("/api/v1/uploads")
	uploads.Use(middleware.ResolveIdentity(c.IdentityService, c.Components.Config.Auth.CookieName, c.Components.Logger))
	{
		uploads.POST("/unlock", h.Unlock, unlock...)    // POST /api/v1/uploads/unlock
		uploads.GET("/share/:slug", h.Share)            // GET /api/v1/uploads/share/{slug}
		uploads.GET("/purchases/:address", h.Purchases) // GET /api/v1/uploads/purchases/{address}
		uploads.GET("/blob/:blobId", h.Blob)            // GET /api/v1/uploads/blob/{blob_id}
		uploads.GET("/:address", h.ListByOwner)         // GET /api/v1/uploads/{address}
		uploads.POST("", h.Register)                    // POST /api/v1/uploads
		uploads.PUT("/:blobId", h.Update)               // PUT /api/v1/uploads/{blob_id}
	}
}
