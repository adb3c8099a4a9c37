package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	slugAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	slugLength   = 10
)

// NewSlug returns a random 10 character alphanumeric share slug
func NewSlug() (string, error) {
	max := big.NewInt(int64(len(slugAlphabet)))
	b := make([]byte, slugLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate slug: %w", err)
		}
		b[i] = slugAlphabet[n.Int64()]
	}
	return string(b), nil
}
