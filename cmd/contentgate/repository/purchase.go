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

// PurchaseRepository is the Postgres purchase ledger. Both uniqueness rules,
// (upload_id, buyer_address) and payment_proof, live in the schema.
type PurchaseRepository struct {
	db *db.DB
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *db.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

const purchaseColumns = `id, upload_id, buyer_address, payment_proof, price::text, currency, created_at`

// Exists reports whether buyer has purchased the upload
func (r *PurchaseRepository) Exists(ctx context.Context, uploadID uuid.UUID, buyer string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM purchases WHERE upload_id = $1 AND buyer_address = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, uploadID, buyer).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent records a purchase. It returns false without error when
// either uniqueness rule already holds a row.
func (r *PurchaseRepository) InsertIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error) {
	query := `
		INSERT INTO purchases (id, upload_id, buyer_address, payment_proof, price, currency, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		purchase.ID,
		purchase.UploadID,
		purchase.BuyerAddress,
		purchase.PaymentProof,
		purchase.Price.String(),
		purchase.Currency,
		purchase.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert purchase: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ListByBuyer lists a buyer's purchases, newest first
func (r *PurchaseRepository) ListByBuyer(ctx context.Context, buyer string) ([]*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases
		WHERE buyer_address = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, buyer)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*models.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchases, nil
}

// GetByPaymentProof returns the purchase that consumed a payment proof
func (r *PurchaseRepository) GetByPaymentProof(ctx context.Context, proof string) (*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE payment_proof = $1`

	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, proof))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return purchase, nil
}

// PurchasedAmong returns which of uploadIDs buyer has purchased, in one query
func (r *PurchaseRepository) PurchasedAmong(ctx context.Context, buyer string, uploadIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	purchased := make(map[uuid.UUID]bool)
	if buyer == "" || len(uploadIDs) == 0 {
		return purchased, nil
	}

	query := `SELECT upload_id FROM purchases WHERE buyer_address = $1 AND upload_id = ANY($2::uuid[])`

	rows, err := r.db.Query(ctx, query, buyer, uuidStrings(uploadIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan upload id: %w", err)
		}
		purchased[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchased, nil
}

func scanPurchase(row pgx.Row) (*models.Purchase, error) {
	var (
		purchase models.Purchase
		price    string
	)

	err := row.Scan(
		&purchase.ID,
		&purchase.UploadID,
		&purchase.BuyerAddress,
		&purchase.PaymentProof,
		&price,
		&purchase.Currency,
		&purchase.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	purchase.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
	}

	return &purchase, nil
}
