package chain

import "math/big"

// Execution statuses reported by the node.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// TransactionView is the subset of an executed transaction needed to
// verify a payment.
type TransactionView struct {
	Digest         string          `json:"digest"`
	Status         string          `json:"status"`
	StatusError    string          `json:"status_error,omitempty"`
	Sender         string          `json:"sender"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
}

// BalanceChange is a signed per-owner, per-coin amount in subunits (MIST for SUI).
// Non-address owners (shared or object-owned) have an empty Owner.
type BalanceChange struct {
	Owner    string   `json:"owner"`
	CoinType string   `json:"coin_type"`
	Amount   *big.Int `json:"amount"`
}

// Succeeded reports whether the transaction executed successfully on-chain.
func (t *TransactionView) Succeeded() bool {
	return t.Status == StatusSuccess
}

// CreditTo returns the first strictly positive balance change owned by
// address, or nil if there is none.
func (t *TransactionView) CreditTo(address string) *BalanceChange {
	for i := range t.BalanceChanges {
		change := &t.BalanceChanges[i]
		if change.Owner != address || change.Amount == nil {
			continue
		}
		if change.Amount.Sign() > 0 {
			return change
		}
	}
	return nil
}
