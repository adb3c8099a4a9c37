package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/cmd/contentgate/middleware"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/logger"
)

// UserHandler handles wallet login and profiles
type UserHandler struct {
	identity *service.IdentityService
	log      *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(identity *service.IdentityService, log *logger.Logger) *UserHandler {
	return &UserHandler{identity: identity, log: log}
}

// Login upserts a wallet user and issues a session token
// POST /api/v1/users/login
func (h *UserHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.log, invalidBody())
	}

	resp, err := h.identity.Login(c.Request().Context(), req.Address)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Profile returns the caller's user record
// GET /api/v1/users/me
func (h *UserHandler) Profile(c echo.Context) error {
	user, err := h.identity.Profile(c.Request().Context(), middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, user)
}

// LookupProfile returns the profile named in the body, or the caller's own
// POST /api/v1/users/profile
func (h *UserHandler) LookupProfile(c echo.Context) error {
	var req models.ProfileRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.log, invalidBody())
	}

	user, err := h.identity.LookupProfile(c.Request().Context(), req.Address, middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile merge-patches the caller's profile
// PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return respondError(c, h.log, invalidBody())
	}

	user, err := h.identity.UpdateProfile(c.Request().Context(), middleware.GetIdentity(c), patch)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, user)
}
