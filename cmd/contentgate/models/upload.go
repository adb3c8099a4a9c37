package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching what clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// Visibility controls who may retrieve an upload's blob
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityPaid    Visibility = "paid"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityPaid:
		return true
	}
	return false
}

// PaymentRequiredBlobID replaces the blob id of paid content the requester
// has not bought
const PaymentRequiredBlobID = "PAYMENT_REQUIRED"

// DefaultCurrency is used when a registration names none
const DefaultCurrency = "SUI"

// Upload is the metadata record for a blob stored on Walrus
type Upload struct {
	ID         uuid.UUID       `json:"_id"`
	BlobID     string          `json:"blobId"`
	Owner      string          `json:"owner"`
	Filename   string          `json:"filename"`
	MimeType   string          `json:"mimeType"`
	Size       int64           `json:"size"`
	Visibility Visibility      `json:"visibility"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Slug       *string         `json:"slug,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// IsOwner reports whether address owns the upload
func (u *Upload) IsOwner(address string) bool {
	return address != "" && u.Owner == address
}

// RegisterUploadRequest is the body of POST /api/v1/uploads
type RegisterUploadRequest struct {
	BlobID     string           `json:"blobId"`
	Owner      string           `json:"owner"`
	Filename   string           `json:"filename"`
	MimeType   string           `json:"mimeType"`
	Size       int64            `json:"size"`
	Visibility Visibility       `json:"visibility,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Currency   string           `json:"currency,omitempty"`
}

// UploadPatch holds the owner-editable fields of an upload. It is the
// document a JSON merge patch is applied to.
type UploadPatch struct {
	Filename   string          `json:"filename"`
	Visibility Visibility      `json:"visibility"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
}

// PurchasedUpload is an upload listed with the buyer's purchase info
type PurchasedUpload struct {
	Upload
	PurchaseDate time.Time `json:"purchaseDate"`
	PaymentProof string    `json:"paymentProof"`
}
