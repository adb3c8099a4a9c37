package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/cmd/contentgate/middleware"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/logger"
)

// APIKeyHandler manages the caller's API keys
type APIKeyHandler struct {
	identity *service.IdentityService
	log      *logger.Logger
}

// NewAPIKeyHandler creates a new API key handler
func NewAPIKeyHandler(identity *service.IdentityService, log *logger.Logger) *APIKeyHandler {
	return &APIKeyHandler{identity: identity, log: log}
}

// Create issues a new key. The raw key is in this response only.
// POST /api/v1/apikeys
func (h *APIKeyHandler) Create(c echo.Context) error {
	var req models.CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.log, invalidBody())
	}

	resp, err := h.identity.CreateAPIKey(c.Request().Context(), middleware.GetIdentity(c), req.Name)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// List lists the caller's keys
// GET /api/v1/apikeys
func (h *APIKeyHandler) List(c echo.Context) error {
	keys, err := h.identity.ListAPIKeys(c.Request().Context(), middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, keys)
}

// Delete revokes one of the caller's keys
// DELETE /api/v1/apikeys/:id
func (h *APIKeyHandler) Delete(c echo.Context) error {
	if err := h.identity.DeleteAPIKey(c.Request().Context(), middleware.GetIdentity(c), c.Param("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "API key deleted"})
}
