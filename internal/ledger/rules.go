package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// The rules below are the ledger's own. The registry core must not rely on
// them beyond what the Client contract states.

var errAdminRoleFixed = fmt.Errorf("%w: the admin account's role cannot be changed", model.ErrConflict)

// checkSubmission validates a record as the ledger receives it.
func checkSubmission(rec *model.LandRecord) error {
	if rec == nil {
		return &model.ValidationError{Field: "record", Reason: "missing"}
	}
	if rec.ID == 0 || rec.ID > math.MaxInt64 {
		return &model.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	for _, f := range []struct{ name, val string }{
		{"owner_name", rec.OwnerName},
		{"location_address", rec.LocationAddress},
		{"area_size", rec.AreaSize},
		{"content_digest", rec.ContentDigest},
		{"media_reference", rec.MediaReference},
	} {
		if strings.TrimSpace(f.val) == "" {
			return &model.ValidationError{Field: f.name, Reason: "must not be empty"}
		}
	}
	return nil
}

// newPending returns the stored projection of a freshly submitted record.
func newPending(rec *model.LandRecord, submitter string) *model.LandRecord {
	cp := *rec
	cp.Status = model.StatusPending
	cp.Submitter = submitter
	cp.Approvals = 0
	cp.Rejections = 0
	return &cp
}

// applyVote counts a vote and finalises the record once either side reaches
// the required number of votes. Terminal records are never modified.
func applyVote(rec *model.LandRecord, d model.Decision, required int) {
	if rec.Status.Terminal() {
		return
	}
	switch d {
	case model.DecisionApprove:
		rec.Approvals++
	case model.DecisionReject:
		rec.Rejections++
	}
	if required < 1 {
		required = 1
	}
	switch {
	case rec.Approvals >= required:
		rec.Status = model.StatusApproved
	case rec.Rejections >= required:
		rec.Status = model.StatusRejected
	}
}

func checkDecision(d model.Decision) error {
	if d != model.DecisionApprove && d != model.DecisionReject {
		return &model.ValidationError{Field: "decision", Reason: "must be approve or reject"}
	}
	return nil
}

func checkThreshold(n int) error {
	if n < 1 {
		return &model.ValidationError{Field: "required_approvals", Reason: "must be at least 1"}
	}
	return nil
}
