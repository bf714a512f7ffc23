package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateToken returns a random alphanumeric string, suitable for
// auth.admin_api_key.
func GenerateToken(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("keygen: token length must be positive")
	}
	result := make([]byte, length)
	for i := range result {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			return "", err
		}
		result[i] = alphanumeric[num.Int64()]
	}
	return string(result), nil
}

// GenerateEncryptionKey returns 32 random bytes, base64 encoded, suitable for
// security.encryption_key.
func GenerateEncryptionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
