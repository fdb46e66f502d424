package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// NewSecret draws a fresh 32-byte hash-lock preimage and returns it with its
// keccak256 digest, both 0x-prefixed.
func NewSecret() (secret string, secretHash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret = "0x" + hex.EncodeToString(buf)
	return secret, HashSecret(buf), nil
}

func HashSecret(x []byte) string {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(x)
	return "0x" + hex.EncodeToString(hasher.Sum(nil))
}

func DecodeBytes32(raw string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return out, Errorf(ErrValidation, "invalid hex %q", raw)
	}
	if len(b) != 32 {
		return out, Errorf(ErrValidation, "expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
