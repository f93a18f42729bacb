package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
)

func openOfficer(t *testing.T, e *env, actor string) *registry.OfficerSession {
	t.Helper()
	s, err := registry.Open(context.Background(), e.svc, actor)
	if err != nil {
		t.Fatal(err)
	}
	sess, ok := s.(*registry.OfficerSession)
	if !ok {
		t.Fatalf("%s: got %T, want *OfficerSession", actor, s)
	}
	return sess
}

func TestReview_scenarioOfficerApproves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, "7")
	o1 := openOfficer(t, e, officer1)

	actionable, err := o1.Actionable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(actionable), []uint64{7}) {
		t.Fatalf("actionable before vote: %v", ids(actionable))
	}

	receipt, err := o1.Review(ctx, 7, model.DecisionApprove)
	if err != nil {
		t.Fatal(err)
	}
	if receipt == nil || receipt.Sequence == 0 {
		t.Errorf("missing acknowledgement: %+v", receipt)
	}

	voted, err := e.ledger.HasVoted(ctx, 7, officer1)
	if err != nil || !voted {
		t.Errorf("HasVoted(7, O1) = %v, %v", voted, err)
	}

	actionable, err = o1.Actionable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(actionable) != 0 {
		t.Errorf("actionable after vote: %v", ids(actionable))
	}

	// The ledger needs two approvals; one vote must not be assumed final.
	view, _ := o1.Records(ctx)
	if view[0].Status != model.StatusPending {
		t.Errorf("status after one approval: %v", view[0].Status)
	}

	o2 := openOfficer(t, e, officer2)
	if _, err := o2.Review(ctx, 7, model.DecisionApprove); err != nil {
		t.Fatal(err)
	}
	view, _ = o1.Records(ctx)
	if view[0].Status != model.StatusApproved {
		t.Errorf("status after threshold: %v", view[0].Status)
	}
}

func TestReview_secondVoteConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, "7")
	o1 := openOfficer(t, e, officer1)

	if _, err := o1.Review(ctx, 7, model.DecisionApprove); err != nil {
		t.Fatal(err)
	}
	_, err := o1.Review(ctx, 7, model.DecisionApprove)
	if !errors.Is(err, model.ErrAlreadyVoted) || !errors.Is(err, model.ErrConflict) {
		t.Errorf("second vote in session: got %v", err)
	}

	// A fresh session for the same officer is stopped by the ledger read.
	again := openOfficer(t, e, officer1)
	if _, err := again.Review(ctx, 7, model.DecisionReject); !errors.Is(err, model.ErrAlreadyVoted) {
		t.Errorf("second vote in new session: got %v", err)
	}
}

func TestReview_wrongCapability(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, "7")
	tr := e.svc.NewTracker()

	for _, c := range []model.Capability{model.CapabilityNone, model.CapabilitySubmitter, model.CapabilityAdmin} {
		_, err := tr.Review(ctx, officer1, c, 7, model.DecisionApprove)
		if !errors.Is(err, model.ErrNotAuthorized) {
			t.Errorf("capability %v: got %v", c, err)
		}
	}
	if voted, _ := e.ledger.HasVoted(ctx, 7, officer1); voted {
		t.Error("unauthorized review reached the ledger")
	}
}

func TestReview_notPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, "7")
	if _, err := e.ledger.SetRequiredApprovals(ctx, admin, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ledger.SubmitReview(ctx, officer2, 7, model.DecisionReject); err != nil {
		t.Fatal(err)
	}

	o1 := openOfficer(t, e, officer1)
	_, err := o1.Review(ctx, 7, model.DecisionApprove)
	if !errors.Is(err, model.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	actionable, err := o1.Actionable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(actionable) != 0 {
		t.Errorf("terminal record listed as actionable: %v", ids(actionable))
	}
}

func TestReview_unknownRecord(t *testing.T) {
	e := newEnv(t)
	o1 := openOfficer(t, e, officer1)
	if _, err := o1.Review(context.Background(), 404, model.DecisionApprove); !errors.Is(err, model.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestReview_ledgerUnavailable(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "7")
	o1 := openOfficer(t, e, officer1)
	e.ledger.set(func(f *flakyLedger) { f.failRecords[7] = true })

	_, err := o1.Review(context.Background(), 7, model.DecisionApprove)
	if !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	// A failed attempt leaves the pair votable.
	e.ledger.set(func(f *flakyLedger) { delete(f.failRecords, 7) })
	if _, err := o1.Review(context.Background(), 7, model.DecisionApprove); err != nil {
		t.Errorf("retry by caller after outage: %v", err)
	}
}

func TestListActionable_perOfficer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.submit(t, "1")
	e.submit(t, "2")
	if _, err := e.ledger.SubmitReview(ctx, officer2, 1, model.DecisionApprove); err != nil {
		t.Fatal(err)
	}

	tr := e.svc.NewTracker()
	view, err := e.svc.NewReconstructor().Reconstruct(ctx, model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}

	got1, err := tr.ListActionable(ctx, view, officer1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got1), []uint64{1, 2}) {
		t.Errorf("officer1: %v", ids(got1))
	}
	got2, err := tr.ListActionable(ctx, view, officer2)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got2), []uint64{2}) {
		t.Errorf("officer2: %v", ids(got2))
	}
}
