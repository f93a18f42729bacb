package model

import (
	"fmt"
	"strings"
	"time"
)

// RecordStatus is the review outcome of a land record. Approved and Rejected
// are terminal: once reached, the status never changes.
type RecordStatus uint8

const (
	StatusPending RecordStatus = iota
	StatusApproved
	StatusRejected
)

var statusNames = [...]string{"Pending", "Approved", "Rejected"}

func (s RecordStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// MarshalText encodes the status by name.
func (s RecordStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown record status %d", s)
	}
	return []byte(statusNames[s]), nil
}

func (s *RecordStatus) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(b)) {
			*s = RecordStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown record status %q", b)
}

// Terminal reports whether the status can no longer change.
func (s RecordStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is an officer's vote on a pending record.
type Decision uint8

const (
	DecisionApprove Decision = iota + 1
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	default:
		return "invalid"
	}
}

func (d Decision) MarshalText() ([]byte, error) {
	if d != DecisionApprove && d != DecisionReject {
		return nil, fmt.Errorf("invalid decision %d", d)
	}
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDecision accepts "approve"/"reject" (and the short forms "a"/"r").
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "a":
		return DecisionApprove, nil
	case "reject", "r":
		return DecisionReject, nil
	}
	return 0, &ValidationError{Field: "decision", Reason: "must be approve or reject"}
}

// LandRecord is the unit of registration held by the ledger.
//
// ID 0 means "absent": the ledger returns a zero record for ids it has never
// seen, and such records are never part of a reconstructed view.
type LandRecord struct {
	ID              uint64       `json:"id"`
	OwnerName       string       `json:"owner_name"`
	LocationAddress string       `json:"location_address"`
	AreaSize        string       `json:"area_size"`
	ContentDigest   string       `json:"content_digest"`
	MediaReference  string       `json:"media_reference"`
	DocumentHash    string       `json:"document_hash,omitempty"`
	Status          RecordStatus `json:"status"`
	Submitter       string       `json:"submitter,omitempty"`
	Approvals       int          `json:"approvals"`
	Rejections      int          `json:"rejections"`
	SubmittedAt     time.Time    `json:"submitted_at,omitzero"`
}

// Present reports whether the record refers to an actual submission.
func (r *LandRecord) Present() bool {
	return r != nil && r.ID != 0
}

// Candidate is the unvalidated form of a record as entered by a submitter.
// ID is kept as text so that syntax errors can be reported precisely.
type Candidate struct {
	ID              string `json:"id"`
	OwnerName       string `json:"owner_name"`
	LocationAddress string `json:"location_address"`
	AreaSize        string `json:"area_size"`
	ContentDigest   string `json:"content_digest"`
	MediaReference  string `json:"media_reference"`
	DocumentHash    string `json:"document_hash,omitempty"`
}
