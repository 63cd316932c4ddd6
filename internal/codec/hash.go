package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// encoding to change without colliding with old hashes.
const (
	DomainSnapshot = "gasoline/snapshot/v1"
	DomainAction   = "gasoline/action/v1"
)

// Hash returns the hex SHA-256 of v's canonical JSON, separated by domain.
// Format: SHA256(domain + 0x00 + canonical(v)).
func Hash(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashBytes(domain, data), nil
}

// HashBytes hashes already canonical data.
func HashBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MustHash is like Hash but panics on error.
func MustHash(domain string, v any) string {
	sum, err := Hash(domain, v)
	if err != nil {
		panic(err)
	}
	return sum
}
