// Package chain looks up Sui transactions over the fullnode JSON-RPC API
// and reduces them to the fields needed for payment verification.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// SuiClient is a JSON-RPC 2.0 client for a Sui fullnode.
type SuiClient struct {
	url    string
	client *http.Client
	nextID atomic.Int64
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewSuiClient creates a client for the fullnode at url. timeout bounds a
// single HTTP round trip, not a retry loop.
func NewSuiClient(url string, timeout time.Duration) *SuiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SuiClient{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// Call invokes a JSON-RPC method and decodes the result into result.
//
// Transport failures and non-2xx responses return ErrConnectionFailed;
// undecodable bodies return ErrInvalidResponse. RPC-level errors are returned
// with the server's message, except lookups of unknown transactions, which
// return ErrTxNotFound.
func (c *SuiClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("chain: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: HTTP %d: %s", ErrConnectionFailed, resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrInvalidResponse, err)
	}

	if rpcResp.ID != reqBody.ID {
		return fmt.Errorf("%w: response ID mismatch: expected %d, got %d",
			ErrInvalidResponse, reqBody.ID, rpcResp.ID)
	}

	if rpcResp.Error != nil {
		if isNotFound(rpcResp.Error.Message) {
			return fmt.Errorf("%w: %s", ErrTxNotFound, rpcResp.Error.Message)
		}
		return fmt.Errorf("chain: rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%w: unmarshal result: %w", ErrInvalidResponse, err)
		}
	}

	return nil
}

func isNotFound(message string) bool {
	msg := strings.ToLower(message)
	return strings.Contains(msg, "could not find") || strings.Contains(msg, "not found")
}

// transactionBlock maps the fields of sui_getTransactionBlock we read.
type transactionBlock struct {
	Digest      string `json:"digest"`
	Transaction *struct {
		Data struct {
			Sender string `json:"sender"`
		} `json:"data"`
	} `json:"transaction"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	BalanceChanges []struct {
		Owner    json.RawMessage `json:"owner"`
		CoinType string          `json:"coinType"`
		Amount   string          `json:"amount"`
	} `json:"balanceChanges"`
}

// GetTransaction fetches a transaction block by digest with effects, input
// and balance changes.
func (c *SuiClient) GetTransaction(ctx context.Context, digest string) (*TransactionView, error) {
	if !ValidDigest(digest) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDigest, digest)
	}

	params := []interface{}{
		digest,
		map[string]bool{
			"showInput":          true,
			"showEffects":        true,
			"showBalanceChanges": true,
		},
	}

	var block *transactionBlock
	if err := c.Call(ctx, "sui_getTransactionBlock", params, &block); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, digest)
	}

	return block.view()
}

func (b *transactionBlock) view() (*TransactionView, error) {
	view := &TransactionView{
		Digest: b.Digest,
	}
	if b.Transaction != nil {
		view.Sender = b.Transaction.Data.Sender
	}
	if b.Effects != nil {
		view.Status = b.Effects.Status.Status
		view.StatusError = b.Effects.Status.Error
	}

	for _, change := range b.BalanceChanges {
		amount, ok := new(big.Int).SetString(change.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("%w: balance change amount %q", ErrInvalidResponse, change.Amount)
		}
		view.BalanceChanges = append(view.BalanceChanges, BalanceChange{
			Owner:    addressOwner(change.Owner),
			CoinType: change.CoinType,
			Amount:   amount,
		})
	}

	return view, nil
}

// addressOwner extracts the address of an {"AddressOwner": "0x.."} owner.
// Other owner kinds ("Immutable", {"Shared": ..}, {"ObjectOwner": ..}) map to "".
func addressOwner(raw json.RawMessage) string {
	var owner struct {
		AddressOwner string `json:"AddressOwner"`
	}
	if err := json.Unmarshal(raw, &owner); err != nil {
		return ""
	}
	return owner.AddressOwner
}

// ValidDigest reports whether s looks like a base58 transaction digest.
func ValidDigest(s string) bool {
	if len(s) < 32 || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
