package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
)

// MemoryUploadRepository is an in-process upload store enforcing the same
// unique constraints as the schema
type MemoryUploadRepository struct {
	mu      sync.RWMutex
	uploads map[uuid.UUID]*models.Upload
}

// NewMemoryUploadRepository creates an empty store
func NewMemoryUploadRepository() *MemoryUploadRepository {
	return &MemoryUploadRepository{uploads: make(map[uuid.UUID]*models.Upload)}
}

func cloneUpload(u *models.Upload) *models.Upload {
	c := *u
	if u.Slug != nil {
		slug := *u.Slug
		c.Slug = &slug
	}
	return &c
}

func (r *MemoryUploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.uploads {
		if existing.BlobID == upload.BlobID {
			return &DuplicateError{Constraint: ConstraintUploadBlobID}
		}
		if upload.Slug != nil && existing.Slug != nil && *existing.Slug == *upload.Slug {
			return &DuplicateError{Constraint: ConstraintUploadSlug}
		}
	}
	r.uploads[upload.ID] = cloneUpload(upload)
	return nil
}

func (r *MemoryUploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	return r.find(func(u *models.Upload) bool { return u.ID == id })
}

func (r *MemoryUploadRepository) GetByBlobID(ctx context.Context, blobID string) (*models.Upload, error) {
	return r.find(func(u *models.Upload) bool { return u.BlobID == blobID })
}

func (r *MemoryUploadRepository) GetBySlug(ctx context.Context, slug string) (*models.Upload, error) {
	return r.find(func(u *models.Upload) bool { return u.Slug != nil && *u.Slug == slug })
}

func (r *MemoryUploadRepository) find(match func(*models.Upload) bool) (*models.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.uploads {
		if match(u) {
			return cloneUpload(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUploadRepository) filter(match func(*models.Upload) bool) []*models.Upload {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Upload
	for _, u := range r.uploads {
		if match(u) {
			out = append(out, cloneUpload(u))
		}
	}
	return out
}

func (r *MemoryUploadRepository) ListByOwner(ctx context.Context, owner string, includePrivate bool) ([]*models.Upload, error) {
	out := r.filter(func(u *models.Upload) bool {
		return u.Owner == owner && (includePrivate || u.Visibility != models.VisibilityPrivate)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryUploadRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Upload, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(u *models.Upload) bool { return want[u.ID] }), nil
}

func (r *MemoryUploadRepository) ListMissingSlug(ctx context.Context, limit int) ([]*models.Upload, error) {
	out := r.filter(func(u *models.Upload) bool { return u.Slug == nil })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryUploadRepository) Update(ctx context.Context, upload *models.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.uploads[upload.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Filename = upload.Filename
	existing.Visibility = upload.Visibility
	existing.Price = upload.Price
	existing.Currency = upload.Currency
	existing.UpdatedAt = upload.UpdatedAt
	return nil
}

func (r *MemoryUploadRepository) SetSlug(ctx context.Context, id uuid.UUID, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.uploads[id]
	if !ok || existing.Slug != nil {
		return ErrNotFound
	}
	for _, u := range r.uploads {
		if u.Slug != nil && *u.Slug == slug {
			return &DuplicateError{Constraint: ConstraintUploadSlug}
		}
	}
	existing.Slug = &slug
	return nil
}

// MemoryPurchaseRepository is an in-process purchase ledger. Both uniqueness
// rules are checked and applied under one lock.
type MemoryPurchaseRepository struct {
	mu        sync.RWMutex
	purchases []*models.Purchase
}

// NewMemoryPurchaseRepository creates an empty ledger
func NewMemoryPurchaseRepository() *MemoryPurchaseRepository {
	return &MemoryPurchaseRepository{}
}

func (r *MemoryPurchaseRepository) Exists(ctx context.Context, uploadID uuid.UUID, buyer string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.purchases {
		if p.UploadID == uploadID && p.BuyerAddress == buyer {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryPurchaseRepository) InsertIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.purchases {
		if p.PaymentProof == purchase.PaymentProof {
			return false, nil
		}
		if p.UploadID == purchase.UploadID && p.BuyerAddress == purchase.BuyerAddress {
			return false, nil
		}
	}
	c := *purchase
	r.purchases = append(r.purchases, &c)
	return true, nil
}

func (r *MemoryPurchaseRepository) ListByBuyer(ctx context.Context, buyer string) ([]*models.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Purchase
	for _, p := range r.purchases {
		if p.BuyerAddress == buyer {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryPurchaseRepository) GetByPaymentProof(ctx context.Context, proof string) (*models.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.purchases {
		if p.PaymentProof == proof {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPurchaseRepository) PurchasedAmong(ctx context.Context, buyer string, uploadIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[uuid.UUID]bool, len(uploadIDs))
	for _, id := range uploadIDs {
		want[id] = true
	}

	purchased := make(map[uuid.UUID]bool)
	if buyer == "" {
		return purchased, nil
	}
	for _, p := range r.purchases {
		if p.BuyerAddress == buyer && want[p.UploadID] {
			purchased[p.UploadID] = true
		}
	}
	return purchased, nil
}

// MemoryUserRepository is an in-process user store
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewMemoryUserRepository creates an empty store
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.Address]; ok {
		existing.UpdatedAt = user.CreatedAt
		c := *existing
		return &c, nil
	}
	c := *user
	c.UpdatedAt = c.CreatedAt
	r.users[user.Address] = &c
	out := c
	return &out, nil
}

func (r *MemoryUserRepository) Get(ctx context.Context, address string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[address]; ok {
		c := *u
		return &c, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Address]; !ok {
		return ErrNotFound
	}
	c := *user
	r.users[user.Address] = &c
	return nil
}

// MemoryAPIKeyRepository is an in-process API key store
type MemoryAPIKeyRepository struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*models.APIKey
}

// NewMemoryAPIKeyRepository creates an empty store
func NewMemoryAPIKeyRepository() *MemoryAPIKeyRepository {
	return &MemoryAPIKeyRepository{keys: make(map[uuid.UUID]*models.APIKey)}
}

func (r *MemoryAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.KeyHash == key.KeyHash {
			return &DuplicateError{Constraint: ConstraintAPIKeyHash}
		}
	}
	c := *key
	r.keys[key.ID] = &c
	return nil
}

func (r *MemoryAPIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.keys {
		if k.KeyHash == keyHash {
			c := *k
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryAPIKeyRepository) ListByUser(ctx context.Context, address string) ([]*models.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.APIKey
	for _, k := range r.keys {
		if k.UserAddress == address {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryAPIKeyRepository) Delete(ctx context.Context, id uuid.UUID, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[id]
	if !ok || k.UserAddress != address {
		return ErrNotFound
	}
	delete(r.keys, id)
	return nil
}

func (r *MemoryAPIKeyRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if k, ok := r.keys[id]; ok {
		t := at
		k.LastUsedAt = &t
	}
	return nil
}
