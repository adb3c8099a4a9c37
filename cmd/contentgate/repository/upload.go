package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/common/db"
)

// UploadRepository handles database operations for uploads
type UploadRepository struct {
	db *db.DB
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *db.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

const uploadColumns = `id, blob_id, owner, filename, mime_type, size_bytes, visibility,
	price::text, currency, slug, created_at, updated_at`

// Create inserts a new upload
func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, blob_id, owner, filename, mime_type, size_bytes, visibility,
		                     price, currency, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		upload.ID,
		upload.BlobID,
		upload.Owner,
		upload.Filename,
		upload.MimeType,
		upload.Size,
		string(upload.Visibility),
		upload.Price.String(),
		upload.Currency,
		upload.Slug,
		upload.CreatedAt,
		upload.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			return &DuplicateError{Constraint: constraint}
		}
		return fmt.Errorf("failed to create upload: %w", err)
	}

	return nil
}

// GetByID retrieves an upload by id
func (r *UploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	return r.getOne(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id)
}

// GetByBlobID retrieves an upload by its Walrus blob id
func (r *UploadRepository) GetByBlobID(ctx context.Context, blobID string) (*models.Upload, error) {
	return r.getOne(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE blob_id = $1`, blobID)
}

// GetBySlug retrieves an upload by share slug
func (r *UploadRepository) GetBySlug(ctx context.Context, slug string) (*models.Upload, error) {
	return r.getOne(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE slug = $1`, slug)
}

func (r *UploadRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Upload, error) {
	upload, err := scanUpload(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

// ListByOwner lists an owner's uploads, newest first. Private uploads are
// included only when includePrivate is set.
func (r *UploadRepository) ListByOwner(ctx context.Context, owner string, includePrivate bool) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads
		WHERE owner = $1 AND ($2 OR visibility <> 'private')
		ORDER BY created_at DESC`

	return r.list(ctx, query, owner, includePrivate)
}

// ListByIDs retrieves the uploads with the given ids, in no particular order
func (r *UploadRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
}

// ListMissingSlug returns up to limit uploads that have no share slug yet
func (r *UploadRepository) ListMissingSlug(ctx context.Context, limit int) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads
		WHERE slug IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	return r.list(ctx, query, limit)
}

func (r *UploadRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Upload, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	return uploads, nil
}

// Update writes the editable fields of an upload and bumps updated_at
func (r *UploadRepository) Update(ctx context.Context, upload *models.Upload) error {
	query := `
		UPDATE uploads
		SET filename = $2, visibility = $3, price = $4::numeric, currency = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		upload.ID,
		upload.Filename,
		string(upload.Visibility),
		upload.Price.String(),
		upload.Currency,
		upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetSlug assigns a slug to an upload that has none. It returns ErrNotFound
// if the upload already has a slug.
func (r *UploadRepository) SetSlug(ctx context.Context, id uuid.UUID, slug string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE uploads SET slug = $2 WHERE id = $1 AND slug IS NULL`, id, slug)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			return &DuplicateError{Constraint: constraint}
		}
		return fmt.Errorf("failed to set slug: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUpload(row pgx.Row) (*models.Upload, error) {
	var (
		upload     models.Upload
		visibility string
		price      string
	)

	err := row.Scan(
		&upload.ID,
		&upload.BlobID,
		&upload.Owner,
		&upload.Filename,
		&upload.MimeType,
		&upload.Size,
		&visibility,
		&price,
		&upload.Currency,
		&upload.Slug,
		&upload.CreatedAt,
		&upload.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	upload.Visibility = models.Visibility(visibility)
	upload.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
	}

	return &upload, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
