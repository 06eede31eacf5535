package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"example.com/trackerimport/internal/domain"
)

// Header carries a client-chosen key for an async import submission.
const Header = "Idempotency-Key"

type KeySource string

const (
	KeyFromHeader  KeySource = "header"
	KeyFromPayload KeySource = "payload"
)

// DeriveKey returns a stable key for an async import submission and the source used.
// - Prefer the explicit Idempotency-Key header when provided.
// - Fallback to a hex SHA-256 of the acting user and the submitted events, so
//   the same user resubmitting the same payload maps to the same job.
func DeriveKey(explicit, actor string, events []domain.Event) (key string, src KeySource) {
	if k := strings.TrimSpace(explicit); k != "" {
		return k, KeyFromHeader
	}
	h := sha256.New()
	h.Write([]byte(actor))
	h.Write([]byte{0})
	enc := json.NewEncoder(h)
	for i := range events {
		// Event marshals without error: plain fields plus a GeoJSON geometry.
		_ = enc.Encode(&events[i])
	}
	return hex.EncodeToString(h.Sum(nil)), KeyFromPayload
}
