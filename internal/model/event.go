package model

import "time"

// Sequence is a position in the ledger's append-only event log.
// GenesisSequence is the origin marker; the first real event is at 1.
type Sequence uint64

const GenesisSequence Sequence = 0

// SubmissionEvent marks that a record id came into existence. It carries no
// business fields; those must be fetched separately.
type SubmissionEvent struct {
	RecordID uint64   `json:"record_id"`
	Sequence Sequence `json:"sequence"`
}

// ReviewEvent records a single officer vote.
type ReviewEvent struct {
	RecordID uint64   `json:"record_id"`
	Officer  string   `json:"officer"`
	Decision Decision `json:"decision"`
	Sequence Sequence `json:"sequence"`
}

// Receipt is the ledger's acknowledgement of an accepted write. A mutating
// call without a receipt has not succeeded.
type Receipt struct {
	Sequence  Sequence  `json:"sequence"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}
