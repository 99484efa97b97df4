// Package fingerprint computes the change-detection digest for listings.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/listwatch/listwatch/internal/listing"
)

// Hasher implements listing.Fingerprinter using SHA-256 over the important
// field set. Volatile fields (images, spec tables, feed ordinals) are
// deliberately excluded so cosmetic re-renders do not read as updates.
type Hasher struct{}

// New returns a SHA-256 fingerprinter.
func New() *Hasher {
	return &Hasher{}
}

// Fingerprint serializes the important fields with lexicographically sorted
// keys and returns the hex digest. Two listings with identical important
// fields always produce the same fingerprint, regardless of how the rest of
// the record differs.
func (h *Hasher) Fingerprint(l listing.Listing) string {
	important := map[string]any{
		"price":       l.Price,
		"mileage":     l.Mileage,
		"description": l.Description,
		"location":    l.Location,
	}
	// Map keys are sorted by encoding/json, which gives the stable ordering
	// the digest depends on.
	payload, err := json.Marshal(important)
	if err != nil {
		// Only unmarshalable types can fail here and the map holds none.
		payload = []byte{}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
