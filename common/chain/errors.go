package chain

import "errors"

var (
	// ErrTxNotFound indicates the node has not indexed the requested transaction (yet).
	ErrTxNotFound = errors.New("chain: transaction not found")

	// ErrConnectionFailed indicates the client could not reach the node.
	ErrConnectionFailed = errors.New("chain: connection failed")

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("chain: invalid response")

	// ErrInvalidDigest indicates the digest is empty or not a plausible transaction digest.
	ErrInvalidDigest = errors.New("chain: invalid transaction digest")
)
