package container

import (
	"fmt"

	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/cmd/contentgate/service"
	"github.com/walrusgate/contentgate/common/bootstrap"
	"github.com/walrusgate/contentgate/common/chain"
	"github.com/walrusgate/contentgate/common/ratelimit"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	Uploads   service.UploadStore
	Purchases service.PurchaseLedger
	Users     service.UserStore
	APIKeys   service.APIKeyStore

	// Chain
	Oracle service.ChainOracle

	// Services
	AccessGate      *service.AccessGate
	UploadService   *service.UploadService
	UnlockService   *service.UnlockService
	IdentityService *service.IdentityService

	// RateLimiter is nil when Redis is disabled
	RateLimiter *ratelimit.RateLimiter
	UnlockLimit ratelimit.RouteLimit
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	c := &Container{Components: components}

	// Postgres when connected, otherwise the in-process stores
	if components.DB != nil {
		c.Uploads = repository.NewUploadRepository(components.DB)
		c.Purchases = repository.NewPurchaseRepository(components.DB)
		c.Users = repository.NewUserRepository(components.DB)
		c.APIKeys = repository.NewAPIKeyRepository(components.DB)
	} else {
		log.Warn("using in-memory stores, data is lost on restart")
		c.Uploads = repository.NewMemoryUploadRepository()
		c.Purchases = repository.NewMemoryPurchaseRepository()
		c.Users = repository.NewMemoryUserRepository()
		c.APIKeys = repository.NewMemoryAPIKeyRepository()
	}

	var oracle chain.TransactionGetter = chain.NewSuiClient(cfg.Chain.RPCURL, cfg.Chain.RequestTimeout)
	if components.Cache != nil {
		oracle = chain.NewCachedClient(oracle, components.Cache, cfg.Cache.DefaultTTL, log)
	}
	c.Oracle = oracle

	// Initialize services (bottom-up: dependencies first)
	c.AccessGate = service.NewAccessGate(c.Purchases)
	c.UploadService = service.NewUploadService(c.Uploads, c.Purchases, c.AccessGate, log)

	var events service.Publisher
	if components.Queue != nil {
		events = components.Queue
	}
	c.UnlockService = service.NewUnlockService(c.Uploads, c.Purchases, c.Oracle, events, service.UnlockConfig{
		Network:  cfg.Chain.Network,
		Decimals: cfg.Chain.Decimals,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.Chain.RetryAttempts,
			Interval:    cfg.Chain.RetryInterval,
		},
		Detach:        cfg.Chain.DetachVerify,
		VerifyTimeout: cfg.Chain.VerifyTimeout,
	}, log)

	identity, err := service.NewIdentityService(c.Users, c.APIKeys, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity service: %w", err)
	}
	c.IdentityService = identity

	if components.Redis != nil {
		c.RateLimiter = ratelimit.NewRateLimiter(components.Redis, log)
	}
	c.UnlockLimit = ratelimit.RouteLimit{
		Scope:         ratelimit.DefaultUnlockLimit.Scope,
		PerUser:       cfg.RateLimit.UnlockPerUser,
		Global:        cfg.RateLimit.UnlockGlobal,
		WindowSeconds: cfg.RateLimit.WindowSeconds,
	}.Normalize()

	return c, nil
}
