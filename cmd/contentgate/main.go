package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/walrusgate/contentgate/cmd/contentgate/container"
	"github.com/walrusgate/contentgate/cmd/contentgate/routes"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/bootstrap"
	"github.com/walrusgate/contentgate/common/logger"
	"github.com/walrusgate/contentgate/common/server"
)

const serviceName = "contentgate"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "Gated content hosting with pay-to-unlock",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Bootstrap common components (DB, logger, queue, cache, telemetry)
		components, err := bootstrap.Setup(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to bootstrap %s: %w", serviceName, err)
		}
		defer components.Shutdown(context.Background())

		// Initialize service container (singleton pattern - all services created once)
		serviceContainer, err := container.NewContainer(components)
		if err != nil {
			return fmt.Errorf("failed to initialize service container: %w", err)
		}

		if components.Queue != nil {
			if err := service.SubscribeAudit(ctx, components.Queue, components.Logger); err != nil {
				return fmt.Errorf("failed to subscribe audit log: %w", err)
			}
		}

		e := setupEcho()
		setupMiddleware(e)
		setupHealthCheck(e, components)
		registerRoutes(e, serviceContainer)

		return startServer(ctx, e, components)
	},
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(requestIDToContext)
}

// requestIDToContext exposes echo's request id to logger.WithContext
func requestIDToContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.ContextWithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": serviceName,
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterUploadRoutes(e, serviceContainer)
	routes.RegisterUserRoutes(e, serviceContainer)
	routes.RegisterAPIKeyRoutes(e, serviceContainer)
}

// startServer serves until the process is signalled
func startServer(ctx context.Context, e *echo.Echo, components *bootstrap.Components) error {
	port := components.Config.Service.Port
	components.Logger.Info("Starting contentgate",
		"port", port,
		"database", components.Config.Database.Type,
		"network", components.Config.Chain.Network,
	)

	return server.New(serviceName, port, e, components.Logger).Start(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "Report the schema version without migrating")
	rootCmd.AddCommand(backfillSlugsCmd)
	backfillSlugsCmd.Flags().IntP("batch-size", "n", 100, "Uploads to update per batch")
}
