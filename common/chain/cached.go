package chain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/walrusgate/contentgate/common/cache"
	"github.com/walrusgate/contentgate/common/logger"
)

// TransactionGetter looks up a transaction by digest.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, digest string) (*TransactionView, error)
}

// CachedClient remembers successful transactions. Those never change, so a
// hit never goes stale. Misses, errors and failed transactions go to next
// every time.
type CachedClient struct {
	next  TransactionGetter
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedClient wraps next with a read-through cache.
func NewCachedClient(next TransactionGetter, c cache.Cache, ttl time.Duration, log *logger.Logger) *CachedClient {
	return &CachedClient{
		next:  next,
		cache: c,
		ttl:   ttl,
		log:   log,
	}
}

// GetTransaction implements TransactionGetter.
func (c *CachedClient) GetTransaction(ctx context.Context, digest string) (*TransactionView, error) {
	key := "sui:tx:" + digest

	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("transaction cache read failed", "digest", digest, "error", err)
	} else if ok {
		var view TransactionView
		if err := json.Unmarshal(data, &view); err == nil {
			c.log.Debug("transaction cache hit", "digest", digest)
			return &view, nil
		}
		c.log.Warn("discarding undecodable cache entry", "digest", digest)
	}

	view, err := c.next.GetTransaction(ctx, digest)
	if err != nil {
		return nil, err
	}

	if !view.Succeeded() {
		return view, nil
	}
	if data, err := json.Marshal(view); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.log.Warn("transaction cache write failed", "digest", digest, "error", err)
		}
	}

	return view, nil
}
