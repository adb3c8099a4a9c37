package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures. Handlers map kinds to HTTP statuses.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidReference
	KindInvalidInput
	KindConflict
	KindPaymentRequired
	KindProofNotFound
	KindPaymentTransactionFailed
	KindSenderMismatch
	KindNoPaymentDetected
	KindInsufficientPayment
	KindUpstreamUnavailable
)

var kindNames = map[ErrorKind]string{
	KindInternal:                 "internal",
	KindUnauthenticated:          "unauthenticated",
	KindForbidden:                "forbidden",
	KindNotFound:                 "not_found",
	KindInvalidReference:         "invalid_reference",
	KindInvalidInput:             "invalid_input",
	KindConflict:                 "conflict",
	KindPaymentRequired:          "payment_required",
	KindProofNotFound:            "proof_not_found",
	KindPaymentTransactionFailed: "payment_transaction_failed",
	KindSenderMismatch:           "sender_mismatch",
	KindNoPaymentDetected:        "no_payment_detected",
	KindInsufficientPayment:      "insufficient_payment",
	KindUpstreamUnavailable:      "upstream_unavailable",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrUnauthenticated          = errors.New("unauthorized")
	ErrForbidden                = errors.New("forbidden")
	ErrNotFound                 = errors.New("upload not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrAPIKeyNotFound           = errors.New("api key not found")
	ErrInvalidReference         = errors.New("invalid upload ID format")
	ErrInvalidInput             = errors.New("invalid input")
	ErrConflict                 = errors.New("upload already exists")
	ErrPaymentReplayed          = errors.New("payment proof has already been used")
	ErrPaymentRequired          = errors.New("payment required")
	ErrProofNotFound            = errors.New("invalid payment proof or transaction not found")
	ErrPaymentTransactionFailed = errors.New("payment transaction failed on-chain")
	ErrSenderMismatch           = errors.New("payment wallet does not match user session")
	ErrNoPaymentDetected        = errors.New("no payment detected to the content owner in this transaction")
	ErrInsufficientPayment      = errors.New("insufficient payment")
	ErrUpstreamUnavailable      = errors.New("payment verification is temporarily unavailable")
)

var sentinelKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrForbidden, KindForbidden},
	{ErrNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrAPIKeyNotFound, KindNotFound},
	{ErrInvalidReference, KindInvalidReference},
	{ErrInvalidInput, KindInvalidInput},
	{ErrConflict, KindConflict},
	{ErrPaymentReplayed, KindConflict},
	{ErrPaymentRequired, KindPaymentRequired},
	{ErrProofNotFound, KindProofNotFound},
	{ErrPaymentTransactionFailed, KindPaymentTransactionFailed},
	{ErrSenderMismatch, KindSenderMismatch},
	{ErrNoPaymentDetected, KindNoPaymentDetected},
	{ErrInsufficientPayment, KindInsufficientPayment},
	{ErrUpstreamUnavailable, KindUpstreamUnavailable},
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// PaymentError is a failed verification with the facts a client needs to
// correct it. It never carries the upload's blob id.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
	err     error
}

func newPaymentError(sentinel error, message string, details map[string]string) *PaymentError {
	return &PaymentError{
		Kind:    KindOf(sentinel),
		Message: message,
		Details: details,
		err:     sentinel,
	}
}

func (e *PaymentError) Error() string {
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.err
}
