package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
)

// CanView reports whether requester may see the upload's record at all.
// Private uploads are visible to their owner only.
func CanView(upload *models.Upload, requester string) bool {
	return upload.Visibility != models.VisibilityPrivate || upload.IsOwner(requester)
}

// Project returns the view of upload that requester is entitled to. Paid
// content the requester neither owns nor bought has its blob id replaced by
// models.PaymentRequiredBlobID; every other field is unchanged. The input is
// not modified.
func Project(upload models.Upload, requester string, purchased bool) models.Upload {
	if upload.IsOwner(requester) {
		return upload
	}

	switch upload.Visibility {
	case models.VisibilityPublic:
		return upload
	case models.VisibilityPaid:
		if purchased {
			return upload
		}
	}

	upload.BlobID = models.PaymentRequiredBlobID
	return upload
}

// AccessGate applies Project with the ledger lookups it needs
type AccessGate struct {
	ledger PurchaseLedger
}

// NewAccessGate creates a new access gate
func NewAccessGate(ledger PurchaseLedger) *AccessGate {
	return &AccessGate{ledger: ledger}
}

// needsPurchase reports whether Project depends on a ledger lookup
func needsPurchase(upload *models.Upload, requester string) bool {
	return upload.Visibility == models.VisibilityPaid && requester != "" && !upload.IsOwner(requester)
}

// ProjectList drops uploads requester may not see and projects the rest,
// with one ledger query for the whole list.
func (g *AccessGate) ProjectList(ctx context.Context, uploads []*models.Upload, requester string) ([]*models.Upload, error) {
	var ids []uuid.UUID
	for _, u := range uploads {
		if needsPurchase(u, requester) {
			ids = append(ids, u.ID)
		}
	}

	purchased := map[uuid.UUID]bool{}
	if len(ids) > 0 {
		var err error
		purchased, err = g.ledger.PurchasedAmong(ctx, requester, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load purchases: %w", err)
		}
	}

	out := make([]*models.Upload, 0, len(uploads))
	for _, u := range uploads {
		if !CanView(u, requester) {
			continue
		}
		projected := Project(*u, requester, purchased[u.ID])
		out = append(out, &projected)
	}
	return out, nil
}

// ProjectOne projects a single upload. Private uploads of other owners are
// ErrForbidden.
func (g *AccessGate) ProjectOne(ctx context.Context, upload *models.Upload, requester string) (*models.Upload, error) {
	if !CanView(upload, requester) {
		return nil, fmt.Errorf("%w: access denied, private file", ErrForbidden)
	}

	purchased := false
	if needsPurchase(upload, requester) {
		var err error
		purchased, err = g.ledger.Exists(ctx, upload.ID, requester)
		if err != nil {
			return nil, fmt.Errorf("failed to check purchase: %w", err)
		}
	}

	projected := Project(*upload, requester, purchased)
	return &projected, nil
}
