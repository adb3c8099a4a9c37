package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase records that a buyer paid for an upload. PaymentProof is the
// transaction digest and is consumed by at most one purchase.
type Purchase struct {
	ID           uuid.UUID       `json:"_id"`
	UploadID     uuid.UUID       `json:"uploadId"`
	BuyerAddress string          `json:"buyerAddress"`
	PaymentProof string          `json:"paymentProof"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Invoice tells a client what to pay to unlock an upload
type Invoice struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Recipient string          `json:"recipient"`
	Network   string          `json:"network"`
}

// UnlockRequest is the body of POST /api/v1/uploads/unlock
type UnlockRequest struct {
	UploadID     string `json:"uploadId"`
	PaymentProof string `json:"paymentProof,omitempty"`
}

// PurchaseEvent is published on the event queue
type PurchaseEvent struct {
	UploadID     uuid.UUID `json:"uploadId"`
	BuyerAddress string    `json:"buyerAddress"`
	PaymentProof string    `json:"paymentProof"`
	Amount       string    `json:"amount"`
	RecordedAt   time.Time `json:"recordedAt"`
}
