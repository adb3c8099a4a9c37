package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/logger"
)

// statusFor maps a service error kind to its HTTP status
func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindForbidden, service.KindSenderMismatch:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidReference, service.KindInvalidInput,
		service.KindProofNotFound, service.KindPaymentTransactionFailed:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindPaymentRequired, service.KindNoPaymentDetected, service.KindInsufficientPayment:
		return http.StatusPaymentRequired
	case service.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal errors are logged
// and never echoed to the client.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	kind := service.KindOf(err)
	status := statusFor(kind)

	if status == http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		return c.JSON(status, map[string]interface{}{
			"message": "Internal server error",
		})
	}

	body := map[string]interface{}{
		"message": err.Error(),
		"error":   kind.String(),
	}

	var pe *service.PaymentError
	if errors.As(err, &pe) {
		body["message"] = pe.Message
		for k, v := range pe.Details {
			body[k] = v
		}
	}

	return c.JSON(status, body)
}

func invalidBody() error {
	return fmt.Errorf("%w: invalid request body", service.ErrInvalidInput)
}
