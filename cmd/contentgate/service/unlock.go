package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/common/chain"
	"github.com/walrusgate/contentgate/common/logger"
)

// UnlockConfig tunes payment verification
type UnlockConfig struct {
	// Network is the chain id advertised in invoices, e.g. "sui:testnet"
	Network string
	// Decimals converts whole-unit prices to subunits (9 for SUI)
	Decimals int32
	Retry    RetryPolicy
	// Detach keeps verifying after the client disconnects, bounded by
	// VerifyTimeout, so a payment that lands is still recorded.
	Detach        bool
	VerifyTimeout time.Duration
}

// UnlockResult is the outcome of a successful unlock request. Exactly one
// of Invoice or BlobID is set.
type UnlockResult struct {
	PaymentRequired  bool
	Invoice          *models.Invoice
	RequiredSubunits *big.Int
	BlobID           string
	Message          string
}

// UnlockService exchanges a payment proof for an upload's blob id
type UnlockService struct {
	uploads UploadStore
	ledger  PurchaseLedger
	oracle  ChainOracle
	events  Publisher
	cfg     UnlockConfig
	log     *logger.Logger
	now     func() time.Time
}

// NewUnlockService creates a new unlock service. events may be nil.
func NewUnlockService(uploads UploadStore, ledger PurchaseLedger, oracle ChainOracle, events Publisher, cfg UnlockConfig, log *logger.Logger) *UnlockService {
	return &UnlockService{
		uploads: uploads,
		ledger:  ledger,
		oracle:  oracle,
		events:  events,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// RequestUnlock runs one step of the pay-to-unlock protocol for requester.
//
// Without a proof it returns an invoice and writes nothing. With a proof it
// looks the transaction up (retrying while the node catches up), checks that
// it succeeded, was sent by requester and credited the owner at least the
// price, then records the purchase. Failures are *PaymentError or wrap one of
// the package sentinels.
func (s *UnlockService) RequestUnlock(ctx context.Context, uploadID, requester, paymentProof string) (*UnlockResult, error) {
	if requester == "" {
		return nil, ErrUnauthenticated
	}

	id, err := uuid.Parse(uploadID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, uploadID)
	}

	upload, err := s.uploads.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}

	if !CanView(upload, requester) {
		return nil, fmt.Errorf("%w: upload is private", ErrForbidden)
	}

	log := s.log.WithContext(ctx).WithUploadID(upload.ID.String()).WithBuyer(requester)

	if paymentProof == "" {
		return s.invoice(upload), nil
	}

	purchased, err := s.ledger.Exists(ctx, upload.ID, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}
	if purchased {
		return alreadyPurchased(upload), nil
	}

	consumed, err := s.ledger.GetByPaymentProof(ctx, paymentProof)
	switch {
	case err == nil:
		log.Warn("payment proof replayed", "payment_proof", paymentProof,
			"consumed_by", consumed.BuyerAddress, "consumed_for", consumed.UploadID)
		return nil, ErrPaymentReplayed
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check payment proof: %w", err)
	}

	vctx, cancel := s.verificationContext(ctx)
	defer cancel()

	log.Info("verifying payment", "payment_proof", paymentProof)

	tx, err := s.fetchTransaction(vctx, log, paymentProof)
	if err != nil {
		return nil, err
	}

	credited, err := s.validate(tx, upload, requester, log)
	if err != nil {
		return nil, err
	}

	return s.record(vctx, log, upload, requester, paymentProof, credited)
}

func (s *UnlockService) invoice(upload *models.Upload) *UnlockResult {
	return &UnlockResult{
		PaymentRequired: true,
		Invoice: &models.Invoice{
			Amount:    upload.Price,
			Currency:  upload.Currency,
			Recipient: upload.Owner,
			Network:   s.cfg.Network,
		},
		RequiredSubunits: ToSubunits(upload.Price, s.cfg.Decimals),
	}
}

func alreadyPurchased(upload *models.Upload) *UnlockResult {
	return &UnlockResult{BlobID: upload.BlobID, Message: "Already purchased"}
}

func (s *UnlockService) verificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Detach {
		ctx = context.WithoutCancel(ctx)
	}
	if s.cfg.VerifyTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *UnlockService) fetchTransaction(ctx context.Context, log *logger.Logger, digest string) (*chain.TransactionView, error) {
	var (
		tx      *chain.TransactionView
		lastErr error
	)

	err := s.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		view, err := s.oracle.GetTransaction(ctx, digest)
		if err != nil {
			lastErr = err
			if errors.Is(err, chain.ErrInvalidDigest) {
				return permanent(err)
			}
			log.Debug("transaction lookup failed", "attempt", attempt, "error", err)
			return err
		}
		tx = view
		return nil
	})
	if err == nil {
		return tx, nil
	}

	if lastErr == nil || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("verification abandoned: %w", err)
	}

	if errors.Is(lastErr, chain.ErrTxNotFound) || errors.Is(lastErr, chain.ErrInvalidDigest) {
		log.Warn("payment transaction not found", "payment_proof", digest, "error", lastErr)
		return nil, newPaymentError(ErrProofNotFound, "Invalid Payment Proof or Transaction not found",
			map[string]string{"details": lastErr.Error()})
	}

	log.Error("payment oracle unavailable", "payment_proof", digest, "error", lastErr)
	return nil, newPaymentError(ErrUpstreamUnavailable, "Payment verification is temporarily unavailable",
		map[string]string{"details": lastErr.Error()})
}

// validate checks tx against the upload in order and stops at the first
// failure. It returns the amount credited to the owner.
func (s *UnlockService) validate(tx *chain.TransactionView, upload *models.Upload, requester string, log *logger.Logger) (*big.Int, error) {
	if !tx.Succeeded() {
		return nil, newPaymentError(ErrPaymentTransactionFailed, "Payment transaction failed on-chain",
			map[string]string{"status": tx.Status, "statusError": tx.StatusError})
	}

	if tx.Sender != requester {
		return nil, newPaymentError(ErrSenderMismatch,
			fmt.Sprintf("Payment wallet (%s) does not match user session (%s)", tx.Sender, requester),
			map[string]string{"sender": tx.Sender, "session": requester})
	}

	credit := tx.CreditTo(upload.Owner)
	if credit == nil {
		log.Warn("no payment to owner", "payment_proof", tx.Digest, "balance_changes", len(tx.BalanceChanges))
		return nil, newPaymentError(ErrNoPaymentDetected,
			"No payment detected to the content owner in this transaction", nil)
	}

	required := ToSubunits(upload.Price, s.cfg.Decimals)
	if credit.Amount.Cmp(required) < 0 {
		return nil, newPaymentError(ErrInsufficientPayment, "Insufficient payment",
			map[string]string{
				"received":       credit.Amount.String(),
				"expected":       required.String(),
				"receivedAmount": FromSubunits(credit.Amount, s.cfg.Decimals).String(),
				"expectedAmount": FromSubunits(required, s.cfg.Decimals).String(),
				"currency":       upload.Currency,
			})
	}

	return credit.Amount, nil
}

func (s *UnlockService) record(ctx context.Context, log *logger.Logger, upload *models.Upload, requester, proof string, credited *big.Int) (*UnlockResult, error) {
	purchase := &models.Purchase{
		ID:           uuid.New(),
		UploadID:     upload.ID,
		BuyerAddress: requester,
		PaymentProof: proof,
		Price:        upload.Price,
		Currency:     upload.Currency,
		CreatedAt:    s.now(),
	}

	created, err := s.ledger.InsertIfAbsent(ctx, purchase)
	if err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	event := &models.PurchaseEvent{
		UploadID:     upload.ID,
		BuyerAddress: requester,
		PaymentProof: proof,
		Amount:       credited.String(),
		RecordedAt:   purchase.CreatedAt,
	}

	if created {
		log.Info("purchase recorded", "payment_proof", proof, "amount", credited.String())
		publishEvent(ctx, s.events, log, TopicPurchaseRecorded, event)
		return &UnlockResult{BlobID: upload.BlobID}, nil
	}

	// Lost a race: either this buyer already has the upload, or the proof
	// was consumed by someone else between the pre-check and the insert.
	purchased, err := s.ledger.Exists(ctx, upload.ID, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}
	if !purchased {
		log.Warn("payment proof consumed concurrently", "payment_proof", proof)
		return nil, ErrPaymentReplayed
	}

	// Same proof stored: a concurrent retry of this request won. Otherwise
	// the buyer paid twice and only the first payment bought the upload.
	if _, err := s.ledger.GetByPaymentProof(ctx, proof); errors.Is(err, repository.ErrNotFound) {
		log.Warn("duplicate payment for purchased upload", "payment_proof", proof, "amount", credited.String())
		publishEvent(ctx, s.events, log, TopicDuplicatePayment, event)
	} else if err != nil {
		log.Warn("failed to look up winning purchase", "error", err)
	}

	return alreadyPurchased(upload), nil
}
