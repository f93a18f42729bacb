// Package digest computes the content digests that bind uploaded media to a
// land record. A digest is "0x" followed by 64 lowercase hex characters, so a
// later substitution of the stored blob is detectable by recomputing the digest
// over the blob's bytes and comparing it with the value held on the ledger.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// Size is the digest length in bytes.
const Size = 32

// Algorithm selects the hash function. A deployment picks one and keeps it:
// digests from different algorithms never compare equal.
type Algorithm string

const (
	SHA256    Algorithm = "sha256"
	Keccak256 Algorithm = "keccak256"
)

// Hasher computes digests with a fixed algorithm.
type Hasher struct {
	algo    Algorithm
	newHash func() hash.Hash
}

// New returns a Hasher for algo. An empty algo selects SHA256.
func New(algo Algorithm) (*Hasher, error) {
	switch Algorithm(strings.ToLower(string(algo))) {
	case SHA256, "":
		return &Hasher{algo: SHA256, newHash: sha256.New}, nil
	case Keccak256:
		return &Hasher{algo: Keccak256, newHash: sha3.NewLegacyKeccak256}, nil
	}
	return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
}

// Algorithm returns the hash function this Hasher uses.
func (h *Hasher) Algorithm() Algorithm { return h.algo }

// Sum returns the digest of data. It runs over the exact bytes given, never
// over a storage reference.
func (h *Hasher) Sum(data []byte) string {
	w := h.newHash()
	w.Write(data) //nolint:errcheck // hash.Hash never returns an error
	return "0x" + hex.EncodeToString(w.Sum(nil))
}

// Verify recomputes the digest of data and compares it with want in
// constant time. A malformed want never matches.
func (h *Hasher) Verify(data []byte, want string) bool {
	wantRaw, err := decode(want)
	if err != nil {
		return false
	}
	w := h.newHash()
	w.Write(data) //nolint:errcheck
	return subtle.ConstantTimeCompare(w.Sum(nil), wantRaw) == 1
}

// Parse checks that s is a well-formed digest and returns it in canonical
// (lowercase) form.
func Parse(s string) (string, error) {
	raw, err := decode(s)
	if err != nil {
		return "", &model.ValidationError{Field: "content_digest", Reason: err.Error()}
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("must start with 0x")
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("not hex: %w", err)
	}
	if len(raw) != Size {
		return nil, fmt.Errorf("must be %d bytes, got %d", Size, len(raw))
	}
	return raw, nil
}
