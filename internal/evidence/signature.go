package evidence

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// SignaturePrefix tags the algorithm of every stored signature.
const SignaturePrefix = "hmac-sha256:"

// ErrInvalidSigningKey is returned for keys shorter than 32 bytes.
var ErrInvalidSigningKey = errors.New("invalid signing key")

// Signer creates and verifies HMAC-SHA256 signatures over audit records.
type Signer struct {
	key []byte
}

// NewSigner creates a signer. The key must be at least 32 raw bytes or 64+
// hex characters decoding to at least 32 bytes.
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := resolveSigningKey(key)
	if err != nil {
		return nil, err
	}
	return &Signer{key: keyBytes}, nil
}

func resolveSigningKey(key string) ([]byte, error) {
	if len(key) >= 64 && len(key)%2 == 0 && isHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("%w: hex decode: %v", ErrInvalidSigningKey, err)
		}
		return decoded, nil
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("%w: need at least 32 bytes, got %d", ErrInvalidSigningKey, len(key))
	}
	return []byte(key), nil
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Sign returns the prefixed HMAC of data.
func (s *Signer) Sign(data []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return SignaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches data.
func (s *Signer) Verify(data []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}
