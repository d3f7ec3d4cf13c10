package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// New returns a domain.Hasher backed by SHA‑256.
func New() domain.Hasher { return sha256Hasher{} }

type sha256Hasher struct{}

func (h sha256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortID returns a stable identifier for content: prefix plus the first n hex
// characters of its digest.
func ShortID(h domain.Hasher, prefix string, data []byte, n int) string {
	digest := h.Hash(data)
	if n > 0 && n < len(digest) {
		digest = digest[:n]
	}
	return prefix + digest
}
