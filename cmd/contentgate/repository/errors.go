package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicate is returned when a write violates a unique constraint
	ErrDuplicate = errors.New("repository: duplicate")
)

// Unique constraint names, shared by the Postgres schema and the memory stores.
const (
	ConstraintUploadBlobID        = "uploads_blob_id_key"
	ConstraintUploadSlug          = "uploads_slug_key"
	ConstraintPurchaseUploadBuyer = "purchases_upload_buyer_key"
	ConstraintPurchaseProof       = "purchases_payment_proof_key"
	ConstraintAPIKeyHash          = "api_keys_key_hash_key"
)

// DuplicateError names the unique constraint a write violated.
// errors.Is(err, ErrDuplicate) holds for every DuplicateError.
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicate, e.Constraint)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// IsDuplicateOf reports whether err violated the named constraint
func IsDuplicateOf(err error, constraint string) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) && dup.Constraint == constraint
}
