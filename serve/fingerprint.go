package serve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Features is an inbound request's feature mapping.
type Features map[string]any

// Fingerprint is the SHA-256 digest of a canonical feature serialization.
type Fingerprint [sha256.Size]byte

// String renders the fingerprint as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint decodes a hex fingerprint produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("parsing fingerprint: want %d bytes, got %d", len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

// ComputeFingerprint returns the fingerprint of features. Keys are sorted
// before serialization, so two mappings with equal contents collide
// regardless of insertion order.
//
// An empty (or nil) mapping is accepted and always yields the same
// fingerprint. Values that cannot be JSON-encoded return ErrDegenerateInput.
func ComputeFingerprint(features Features) (Fingerprint, error) {
	canonical, err := CanonicalBytes(features)
	if err != nil {
		return Fingerprint{}, err
	}
	return sha256.Sum256(canonical), nil
}

// CanonicalBytes returns the serialization hashed by ComputeFingerprint:
// sorted `"key":value` pairs joined by commas. Nested maps are ordered by
// the JSON encoder.
func CanonicalBytes(features Features) ([]byte, error) {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 16*len(keys))
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		v, err := json.Marshal(features[k])
		if err != nil {
			return nil, fmt.Errorf("%w: feature %q: %v", ErrDegenerateInput, k, err)
		}
		buf = append(buf, v...)
	}
	return buf, nil
}

// DecodeJSON decodes one JSON value from r into v. Numbers inside untyped
// values stay json.Number, so integers beyond float64 precision keep
// distinct fingerprints.
func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
