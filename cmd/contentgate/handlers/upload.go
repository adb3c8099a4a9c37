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

// Payment headers sent with an invoice
const (
	HeaderPrice            = "X-Price"
	HeaderPaymentRecipient = "X-Payment-Recipient"
	HeaderPaymentNetwork   = "X-Payment-Network"
)

// UploadHandler handles upload and unlock requests
type UploadHandler struct {
	uploads *service.UploadService
	unlock  *service.UnlockService
	log     *logger.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploads *service.UploadService, unlock *service.UnlockService, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		unlock:  unlock,
		log:     log,
	}
}

// Unlock exchanges a payment proof for a blob id, or returns an invoice
// POST /api/v1/uploads/unlock
func (h *UploadHandler) Unlock(c echo.Context) error {
	var req models.UnlockRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.log, invalidBody())
	}

	result, err := h.unlock.RequestUnlock(c.Request().Context(), req.UploadID, middleware.GetIdentity(c), req.PaymentProof)
	if err != nil {
		return respondError(c, h.log, err)
	}

	if result.PaymentRequired {
		header := c.Response().Header()
		header.Set(HeaderPrice, result.RequiredSubunits.String())
		header.Set(HeaderPaymentRecipient, result.Invoice.Recipient)
		header.Set(HeaderPaymentNetwork, result.Invoice.Network)

		return c.JSON(http.StatusPaymentRequired, map[string]interface{}{
			"message": "Payment Required",
			"invoice": result.Invoice,
		})
	}

	body := map[string]interface{}{"blobId": result.BlobID}
	if result.Message != "" {
		body["message"] = result.Message
	}
	return c.JSON(http.StatusOK, body)
}

// ListByOwner lists a wallet's uploads as the caller may see them
// GET /api/v1/uploads/:address
func (h *UploadHandler) ListByOwner(c echo.Context) error {
	uploads, err := h.uploads.ListByOwner(c.Request().Context(), c.Param("address"), middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, uploads)
}

// Share resolves a share link
// GET /api/v1/uploads/share/:slug
func (h *UploadHandler) Share(c echo.Context) error {
	upload, err := h.uploads.GetBySlug(c.Request().Context(), c.Param("slug"), middleware.GetIdentity(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, upload)
}

// Purchases lists the caller's purchased uploads
// GET /api/v1/uploads/purchases/:address
func (h *UploadHandler) Purchases(c echo.Context) error {
	purchases, err := h.uploads.ListPurchases(c.Request().Context(), middleware.GetIdentity(c), c.Param("address"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, purchases)
}

// Blob returns the raw record for a blob id
// GET /api/v1/uploads/blob/:blobId
func (h *UploadHandler) Blob(c echo.Context) error {
	upload, err := h.uploads.GetByBlobID(c.Request().Context(), c.Param("blobId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, upload)
}

// Register records a new upload
// POST /api/v1/uploads
func (h *UploadHandler) Register(c echo.Context) error {
	var req models.RegisterUploadRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.log, invalidBody())
	}

	upload, created, err := h.uploads.Register(c.Request().Context(), middleware.GetIdentity(c), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	if created {
		return c.JSON(http.StatusCreated, upload)
	}
	return c.JSON(http.StatusOK, upload)
}

// Update applies a JSON merge patch to an upload's editable fields
// PUT /api/v1/uploads/:blobId
func (h *UploadHandler) Update(c echo.Context) error {
	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return respondError(c, h.log, invalidBody())
	}

	upload, err := h.uploads.Update(c.Request().Context(), middleware.GetIdentity(c), c.Param("blobId"), patch)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, upload)
}
