package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// GenesisHash is the canonical well-known hash of the genesis entry.
// It serves as the trust anchor of the chain; all subsequent entry hashes
// chain from this constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// systemActor signs the genesis entry.
const systemActor = "ledger-system"

// Entry kinds.
const (
	KindGenesis    = "genesis"
	KindRole       = "role"
	KindThreshold  = "threshold"
	KindSubmission = "submission"
	KindReview     = "review"
)

// Entry is a single event in the ledger's log.
type Entry struct {
	Sequence  model.Sequence `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Actor     string         `json:"actor"`
	RecordID  uint64         `json:"record_id,omitempty"`
	DataHash  string         `json:"data_hash"` // SHA-256 of the event payload
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// Receipt converts the entry into the acknowledgement returned to writers.
func (e *Entry) Receipt() *model.Receipt {
	return &model.Receipt{Sequence: e.Sequence, Hash: e.Hash, Timestamp: e.Timestamp}
}

// rolePayload, thresholdPayload and reviewPayload are hashed into DataHash.
// Submissions hash the full record.
type rolePayload struct {
	Account    string `json:"account"`
	Capability string `json:"capability"`
}

type thresholdPayload struct {
	RequiredApprovals int `json:"required_approvals"`
}

type reviewPayload struct {
	Officer  string         `json:"officer"`
	Decision model.Decision `json:"decision"`
}

func newGenesis(now time.Time) *Entry {
	return &Entry{
		Sequence:  model.GenesisSequence,
		Timestamp: now,
		Kind:      KindGenesis,
		Actor:     systemActor,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
	}
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
// This function must never be called on the genesis entry (sequence 0).
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%d|%s|%s",
		e.Sequence, e.Timestamp.Format(time.RFC3339Nano),
		e.Kind, e.Actor, e.RecordID, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// payloadHash returns the hex SHA-256 of the JSON encoding of payload.
func payloadHash(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// verifyLink checks curr against its predecessor.
func verifyLink(prev, curr *Entry) error {
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at sequence %d", curr.Sequence)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Sequence)
	}
	return nil
}
