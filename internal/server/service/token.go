package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// generateSecureToken produces a cryptographically secure, URL-safe random
// string. 32 characters over this 62-symbol alphabet is comfortably past
// 128 bits of entropy.
func generateSecureToken(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
