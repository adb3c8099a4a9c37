package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/common/db"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *db.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *db.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `address, username, email, avatar, banner, bio, created_at, updated_at`

// Upsert creates the user if absent and returns the stored row.
// An existing profile is kept.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (address, username, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (address) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	stored, err := scanUser(r.db.QueryRow(ctx, query, user.Address, user.Username, user.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return stored, nil
}

// Get retrieves a user by wallet address
func (r *UserRepository) Get(ctx context.Context, address string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE address = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, address))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Update overwrites the profile fields of an existing user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, avatar = $4, banner = $5, bio = $6, updated_at = $7
		WHERE address = $1
	`

	result, err := r.db.Exec(ctx, query,
		user.Address,
		user.Username,
		user.Email,
		user.Avatar,
		user.Banner,
		user.Bio,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.Address,
		&user.Username,
		&user.Email,
		&user.Avatar,
		&user.Banner,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// APIKeyRepository handles database operations for API keys
type APIKeyRepository struct {
	db *db.DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *db.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_address, key_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, key.ID, key.UserAddress, key.KeyHash, key.Name, key.CreatedAt)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			return &DuplicateError{Constraint: constraint}
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

// GetByHash looks up a key by the SHA-256 of its raw value
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT id, user_address, key_hash, name, created_at, last_used_at
		FROM api_keys
		WHERE key_hash = $1
	`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// ListByUser lists a user's keys, oldest first
func (r *APIKeyRepository) ListByUser(ctx context.Context, address string) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_address, key_hash, name, created_at, last_used_at
		FROM api_keys
		WHERE user_address = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}

	return keys, nil
}

// Delete removes a key owned by address
func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID, address string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM api_keys WHERE id = $1 AND user_address = $2`, id, address)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch sets last_used_at
func (r *APIKeyRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	key := &models.APIKey{}
	err := row.Scan(
		&key.ID,
		&key.UserAddress,
		&key.KeyHash,
		&key.Name,
		&key.CreatedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return key, nil
}
