package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// timeLayout pins timestamps inside hashed documents to microsecond
// precision, matching what postgres round-trips. RFC3339Nano is unsuitable
// because it drops trailing zeros.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime renders t the way hashed documents embed timestamps. Recomputing
// a digest from persisted rows must produce the same string as issuance did.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timeLayout)
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Canonicalize marshals v and transforms the result into its RFC 8785
// canonical form (sorted keys, fixed number formatting), so independent
// reimplementations reproduce identical bytes.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canonical, nil
}

// Digest returns the SHA-256 hex digest of the canonical JSON form of v.
// This is the content hash used for batch genesis hashes, stage anchor
// payloads and certificate payload hashes.
func Digest(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}
