package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/common/logger"
)

// slugAttempts bounds retries when a generated slug collides
const slugAttempts = 5

// UploadService is the content registry
type UploadService struct {
	uploads UploadStore
	ledger  PurchaseLedger
	gate    *AccessGate
	log     *logger.Logger
	now     func() time.Time
	newSlug func() (string, error)
}

// NewUploadService creates a new upload service
func NewUploadService(uploads UploadStore, ledger PurchaseLedger, gate *AccessGate, log *logger.Logger) *UploadService {
	return &UploadService{
		uploads: uploads,
		ledger:  ledger,
		gate:    gate,
		log:     log,
		now:     time.Now,
		newSlug: NewSlug,
	}
}

// Register records a new upload for requester. Registering the same blob
// again as its owner returns the stored record with created false.
func (s *UploadService) Register(ctx context.Context, requester string, req *models.RegisterUploadRequest) (*models.Upload, bool, error) {
	if requester == "" {
		return nil, false, ErrUnauthenticated
	}
	if req.Owner != requester {
		return nil, false, fmt.Errorf("%w: you can only upload for yourself", ErrForbidden)
	}
	if err := validateRegistration(req); err != nil {
		return nil, false, err
	}

	if existing, err := s.existingRegistration(ctx, req.BlobID, requester); err != nil || existing != nil {
		return existing, false, err
	}

	now := s.now().UTC()
	upload := &models.Upload{
		ID:         uuid.New(),
		BlobID:     req.BlobID,
		Owner:      req.Owner,
		Filename:   req.Filename,
		MimeType:   req.MimeType,
		Size:       req.Size,
		Visibility: req.Visibility,
		Currency:   req.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if upload.Visibility == "" {
		upload.Visibility = models.VisibilityPrivate
	}
	if req.Price != nil {
		upload.Price = *req.Price
	}
	if upload.Currency == "" {
		upload.Currency = models.DefaultCurrency
	}

	for attempt := 1; ; attempt++ {
		slug, err := s.newSlug()
		if err != nil {
			return nil, false, err
		}
		upload.Slug = &slug

		err = s.uploads.Create(ctx, upload)
		switch {
		case err == nil:
			s.log.Info("registered upload",
				"upload_id", upload.ID,
				"blob_id", upload.BlobID,
				"owner", upload.Owner,
				"visibility", upload.Visibility,
			)
			return upload, true, nil

		case repository.IsDuplicateOf(err, repository.ConstraintUploadSlug) && attempt < slugAttempts:
			s.log.Debug("slug collision, retrying", "attempt", attempt)

		case repository.IsDuplicateOf(err, repository.ConstraintUploadBlobID):
			// Registered concurrently; apply the same ownership rule.
			existing, err := s.existingRegistration(ctx, req.BlobID, requester)
			if err != nil {
				return nil, false, err
			}
			if existing == nil {
				return nil, false, ErrConflict
			}
			return existing, false, nil

		default:
			return nil, false, fmt.Errorf("failed to register upload: %w", err)
		}
	}
}

// existingRegistration returns the stored upload for blobID if requester
// owns it, ErrConflict if someone else does, and nil if there is none.
func (s *UploadService) existingRegistration(ctx context.Context, blobID, requester string) (*models.Upload, error) {
	existing, err := s.uploads.GetByBlobID(ctx, blobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up blob: %w", err)
	}
	if existing.Owner != requester {
		return nil, ErrConflict
	}
	return existing, nil
}

func validateRegistration(req *models.RegisterUploadRequest) error {
	switch {
	case strings.TrimSpace(req.BlobID) == "":
		return fmt.Errorf("%w: blobId is required", ErrInvalidInput)
	case strings.TrimSpace(req.Filename) == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	case req.MimeType == "":
		return fmt.Errorf("%w: mimeType is required", ErrInvalidInput)
	case req.Size < 0:
		return fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
	case req.Visibility != "" && !req.Visibility.Valid():
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidInput, req.Visibility)
	}
	if req.Price != nil {
		return validatePrice(*req.Price)
	}
	return nil
}

// editableFields are the keys an owner may set through Update
var editableFields = map[string]bool{
	"filename":   true,
	"visibility": true,
	"price":      true,
	"currency":   true,
}

// Update applies a JSON merge patch over the editable fields of the upload
// identified by blobID. Unknown keys and nulls are rejected.
func (s *UploadService) Update(ctx context.Context, requester, blobID string, patch []byte) (*models.Upload, error) {
	if requester == "" {
		return nil, ErrUnauthenticated
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidInput)
	}
	for key, value := range fields {
		if !editableFields[key] {
			return nil, fmt.Errorf("%w: field %q is not editable", ErrInvalidInput, key)
		}
		if string(value) == "null" {
			return nil, fmt.Errorf("%w: field %q cannot be null", ErrInvalidInput, key)
		}
	}
	// Validate the raw number; merging may round it.
	if raw, ok := fields["price"]; ok {
		var price decimal.Decimal
		if err := json.Unmarshal(raw, &price); err != nil {
			return nil, fmt.Errorf("%w: price must be a number", ErrInvalidInput)
		}
		if err := validatePrice(price); err != nil {
			return nil, err
		}
	}

	upload, err := s.uploads.GetByBlobID(ctx, blobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}
	if !upload.IsOwner(requester) {
		return nil, fmt.Errorf("%w: you can only edit your own files", ErrForbidden)
	}

	current, err := json.Marshal(models.UploadPatch{
		Filename:   upload.Filename,
		Visibility: upload.Visibility,
		Price:      upload.Price,
		Currency:   upload.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload: %w", err)
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var edited models.UploadPatch
	if err := json.Unmarshal(merged, &edited); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch {
	case strings.TrimSpace(edited.Filename) == "":
		return nil, fmt.Errorf("%w: filename must not be empty", ErrInvalidInput)
	case !edited.Visibility.Valid():
		return nil, fmt.Errorf("%w: unknown visibility %q", ErrInvalidInput, edited.Visibility)
	case edited.Currency == "":
		return nil, fmt.Errorf("%w: currency must not be empty", ErrInvalidInput)
	}
	if err := validatePrice(edited.Price); err != nil {
		return nil, err
	}

	upload.Filename = edited.Filename
	upload.Visibility = edited.Visibility
	upload.Price = edited.Price
	upload.Currency = edited.Currency
	upload.UpdatedAt = s.now().UTC()

	if err := s.uploads.Update(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to update upload: %w", err)
	}

	if upload.Slug == nil {
		if slug, err := s.assignSlug(ctx, upload.ID); err != nil {
			s.log.Warn("failed to assign slug", "upload_id", upload.ID, "error", err)
		} else {
			upload.Slug = &slug
		}
	}

	s.log.Info("updated upload",
		"upload_id", upload.ID,
		"visibility", upload.Visibility,
		"price", upload.Price.String(),
	)

	return upload, nil
}

// GetByBlobID returns the raw record for a blob
func (s *UploadService) GetByBlobID(ctx context.Context, blobID string) (*models.Upload, error) {
	upload, err := s.uploads.GetByBlobID(ctx, blobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

// GetBySlug returns the shared upload as requester may see it
func (s *UploadService) GetBySlug(ctx context.Context, slug, requester string) (*models.Upload, error) {
	upload, err := s.uploads.GetBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return s.gate.ProjectOne(ctx, upload, requester)
}

// ListByOwner lists owner's uploads, newest first, as requester may see them
func (s *UploadService) ListByOwner(ctx context.Context, owner, requester string) ([]*models.Upload, error) {
	uploads, err := s.uploads.ListByOwner(ctx, owner, owner == requester)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return s.gate.ProjectList(ctx, uploads, requester)
}

// ListPurchases returns the uploads address has bought, newest purchase first
func (s *UploadService) ListPurchases(ctx context.Context, requester, address string) ([]*models.PurchasedUpload, error) {
	if requester == "" {
		return nil, ErrUnauthenticated
	}
	if requester != address {
		return nil, fmt.Errorf("%w: you can only view your own purchases", ErrForbidden)
	}

	purchases, err := s.ledger.ListByBuyer(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.UploadID)
	}
	uploads, err := s.uploads.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchased uploads: %w", err)
	}

	byID := make(map[uuid.UUID]*models.Upload, len(uploads))
	for _, u := range uploads {
		byID[u.ID] = u
	}

	out := make([]*models.PurchasedUpload, 0, len(purchases))
	for _, p := range purchases {
		u, ok := byID[p.UploadID]
		if !ok {
			continue
		}
		out = append(out, &models.PurchasedUpload{
			Upload:       *u,
			PurchaseDate: p.CreatedAt,
			PaymentProof: p.PaymentProof,
		})
	}
	return out, nil
}

// BackfillSlugs assigns slugs to uploads registered without one and returns
// how many were assigned.
func (s *UploadService) BackfillSlugs(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	total := 0
	for {
		pending, err := s.uploads.ListMissingSlug(ctx, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list uploads without slug: %w", err)
		}
		if len(pending) == 0 {
			return total, nil
		}

		assigned := 0
		for _, u := range pending {
			if _, err := s.assignSlug(ctx, u.ID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return total, err
			}
			assigned++
		}
		total += assigned
		s.log.Info("backfilled slugs", "batch", len(pending), "assigned", assigned, "total", total)

		if assigned == 0 {
			return total, nil
		}
	}
}

func (s *UploadService) assignSlug(ctx context.Context, id uuid.UUID) (string, error) {
	for attempt := 1; ; attempt++ {
		slug, err := s.newSlug()
		if err != nil {
			return "", err
		}
		err = s.uploads.SetSlug(ctx, id, slug)
		if err == nil {
			return slug, nil
		}
		if !repository.IsDuplicateOf(err, repository.ConstraintUploadSlug) || attempt >= slugAttempts {
			return "", err
		}
	}
}
