package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/common/chain"
)

// ChainOracle reads executed transactions. Implementations return
// chain.ErrTxNotFound for digests the node has not indexed yet.
type ChainOracle interface {
	GetTransaction(ctx context.Context, digest string) (*chain.TransactionView, error)
}

// UploadStore is the content registry
type UploadStore interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	GetByBlobID(ctx context.Context, blobID string) (*models.Upload, error)
	GetBySlug(ctx context.Context, slug string) (*models.Upload, error)
	ListByOwner(ctx context.Context, owner string, includePrivate bool) ([]*models.Upload, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Upload, error)
	ListMissingSlug(ctx context.Context, limit int) ([]*models.Upload, error)
	Update(ctx context.Context, upload *models.Upload) error
	SetSlug(ctx context.Context, id uuid.UUID, slug string) error
}

// PurchaseLedger records who has paid for what. InsertIfAbsent must be
// atomic with respect to both uniqueness rules.
type PurchaseLedger interface {
	Exists(ctx context.Context, uploadID uuid.UUID, buyer string) (bool, error)
	InsertIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error)
	ListByBuyer(ctx context.Context, buyer string) ([]*models.Purchase, error)
	GetByPaymentProof(ctx context.Context, proof string) (*models.Purchase, error)
	PurchasedAmong(ctx context.Context, buyer string, uploadIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// UserStore persists wallet users
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	Get(ctx context.Context, address string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// APIKeyStore persists hashed API keys
type APIKeyStore interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	ListByUser(ctx context.Context, address string) ([]*models.APIKey, error)
	Delete(ctx context.Context, id uuid.UUID, address string) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Publisher is the write side of the event queue
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
}
