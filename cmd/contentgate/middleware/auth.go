package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/common/logger"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// AddressKey is the context key for the resolved wallet address
	AddressKey ContextKey = "address"
)

// Request headers carrying credentials
const (
	HeaderWalletAddress = "X-Wallet-Address"
	HeaderAPIKey        = "X-API-Key"
)

// apiKeyPrefix mirrors service.APIKeyPrefix
const apiKeyPrefix = "sk_"

// CredentialVerifier turns credentials into a wallet address
type CredentialVerifier interface {
	VerifyToken(token string) (string, error)
	ResolveAPIKey(ctx context.Context, raw string) (string, error)
}

// ResolveIdentity resolves the caller's wallet address and stores it in the
// echo context. Sources are tried in order and the first that yields an
// address wins:
//
//	Authorization: Bearer <jwt>
//	Authorization: Bearer sk_...
//	X-Wallet-Address
//	cookie <cookieName> holding a jwt
//	X-API-Key
//
// Requests with no usable credential continue anonymously; handlers decide
// whether that is acceptable.
func ResolveIdentity(verifier CredentialVerifier, cookieName string, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if address := resolve(c, verifier, cookieName, log); address != "" {
				c.Set(string(AddressKey), address)
			}
			return next(c)
		}
	}
}

func resolve(c echo.Context, verifier CredentialVerifier, cookieName string, log *logger.Logger) string {
	req := c.Request()
	ctx := req.Context()

	if bearer, ok := bearerToken(req.Header.Get(echo.HeaderAuthorization)); ok {
		if strings.HasPrefix(bearer, apiKeyPrefix) {
			if address, err := verifier.ResolveAPIKey(ctx, bearer); err == nil {
				return address
			}
			log.Debug("bearer api key rejected")
		} else if address, err := verifier.VerifyToken(bearer); err == nil {
			return address
		} else {
			log.Debug("bearer token rejected", "error", err)
		}
	}

	if address := strings.TrimSpace(req.Header.Get(HeaderWalletAddress)); address != "" {
		return address
	}

	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
			if address, err := verifier.VerifyToken(cookie.Value); err == nil {
				return address
			}
			log.Debug("session cookie rejected")
		}
	}

	if raw := req.Header.Get(HeaderAPIKey); raw != "" {
		if address, err := verifier.ResolveAPIKey(ctx, raw); err == nil {
			return address
		}
		log.Debug("api key rejected")
	}

	return ""
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// GetIdentity retrieves the wallet address from the request context
// Returns empty string if not set
func GetIdentity(c echo.Context) string {
	address, _ := c.Get(string(AddressKey)).(string)
	return address
}
