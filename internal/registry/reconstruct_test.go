package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
)

func TestReconstruct_sortedByID(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"30", "4", "17"} {
		e.submit(t, id)
	}

	view, err := e.svc.NewReconstructor().Reconstruct(context.Background(), model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(view); !equalIDs(got, []uint64{4, 17, 30}) {
		t.Errorf("ids: got %v, want [4 17 30]", got)
	}
}

func TestReconstruct_idempotent(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "1")
	e.submit(t, "2")
	r := e.svc.NewReconstructor()
	ctx := context.Background()

	first, err := r.Reconstruct(ctx, model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Reconstruct(ctx, model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("record %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestReconstruct_deduplicatesAndSkipsZero(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "5")
	events, _ := e.ledger.SubmissionEvents(context.Background(), model.GenesisSequence)

	// Overlapping ranges report id 5 again, plus a bogus id 0.
	e.ledger.set(func(f *flakyLedger) {
		f.extraEvents = append(events, model.SubmissionEvent{RecordID: 0, Sequence: 99})
	})

	view, err := e.svc.NewReconstructor().Reconstruct(context.Background(), model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(view); !equalIDs(got, []uint64{5}) {
		t.Errorf("ids: got %v, want [5]", got)
	}
}

func TestReconstruct_dropsFailedAndAbsentFetches(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"1", "2", "3"} {
		e.submit(t, id)
	}
	e.ledger.set(func(f *flakyLedger) {
		f.failRecords[2] = true
		f.absent[3] = true
	})
	r := e.svc.NewReconstructor()
	ctx := context.Background()

	view, err := r.Reconstruct(ctx, model.GenesisSequence)
	if err != nil {
		t.Fatalf("partial availability must not abort: %v", err)
	}
	if got := ids(view); !equalIDs(got, []uint64{1}) {
		t.Errorf("ids: got %v, want [1]", got)
	}

	// Once the transient failures clear, the same range yields the full set.
	e.ledger.set(func(f *flakyLedger) {
		delete(f.failRecords, 2)
		delete(f.absent, 3)
	})
	view, err = r.Reconstruct(ctx, model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(view); !equalIDs(got, []uint64{1, 2, 3}) {
		t.Errorf("ids after recovery: got %v, want [1 2 3]", got)
	}
}

func TestReconstruct_eventReadFailureIsFatal(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "1")
	e.ledger.set(func(f *flakyLedger) { f.failEvents = true })

	_, err := e.svc.NewReconstructor().Reconstruct(context.Background(), model.GenesisSequence)
	if !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestReconstruct_cancelledDiscardsResults(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		e.submit(t, id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view, err := e.svc.NewReconstructor().Reconstruct(ctx, model.GenesisSequence)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if view != nil {
		t.Errorf("partial result returned: %v", ids(view))
	}
}

func TestReconstruct_emptyLedger(t *testing.T) {
	e := newEnv(t)
	view, err := e.svc.NewReconstructor().Reconstruct(context.Background(), model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 0 {
		t.Errorf("expected empty view, got %v", ids(view))
	}
}

func TestRefresh_incrementalFromCursor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.svc.NewReconstructor()

	if got := r.Cursor(); got != (registry.Cursor{}) {
		t.Fatalf("new cursor: %+v", got)
	}

	e.submit(t, "1")
	view, err := r.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(view), []uint64{1}) {
		t.Fatalf("first refresh: %v", ids(view))
	}
	c1 := r.Cursor()
	if c1.Last == model.GenesisSequence {
		t.Fatal("cursor did not advance")
	}

	e.submit(t, "2")
	view, err = r.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(view), []uint64{1, 2}) {
		t.Errorf("second refresh: %v", ids(view))
	}

	e.ledger.mu.RLock()
	froms := append([]model.Sequence(nil), e.ledger.froms...)
	e.ledger.mu.RUnlock()
	if len(froms) != 2 || froms[0] != model.GenesisSequence || froms[1] != c1.Next() {
		t.Errorf("replay positions: %v (cursor after first refresh %+v)", froms, c1)
	}
}

func TestRefresh_failedReadKeepsCursor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.svc.NewReconstructor()
	e.submit(t, "1")
	if _, err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	before := r.Cursor()

	e.submit(t, "2")
	e.ledger.set(func(f *flakyLedger) { f.failEvents = true })
	if _, err := r.Refresh(ctx); !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if r.Cursor() != before {
		t.Errorf("cursor moved on failure: %+v -> %+v", before, r.Cursor())
	}

	e.ledger.set(func(f *flakyLedger) { f.failEvents = false })
	view, err := r.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(view), []uint64{1, 2}) {
		t.Errorf("after recovery: %v", ids(view))
	}
}

func TestRefresh_seesStatusChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.svc.NewReconstructor()
	e.submit(t, "1")
	if _, err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	// No new submission events, but known projections are re-read.
	if _, err := e.ledger.SetRequiredApprovals(ctx, admin, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ledger.SubmitReview(ctx, officer1, 1, model.DecisionReject); err != nil {
		t.Fatal(err)
	}
	view, err := r.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 1 || view[0].Status != model.StatusRejected {
		t.Errorf("view after review: %+v", view)
	}
}

func TestReset_replaysFromGenesis(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.svc.NewReconstructor()
	e.submit(t, "1")
	if _, err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	r.Reset()
	if r.Cursor().Next() != model.GenesisSequence {
		t.Errorf("cursor after reset: %+v", r.Cursor())
	}
	view, err := r.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(view), []uint64{1}) {
		t.Errorf("after reset: %v", ids(view))
	}
}

func TestCursor_next(t *testing.T) {
	if got := (registry.Cursor{}).Next(); got != model.GenesisSequence {
		t.Errorf("zero cursor Next() = %d", got)
	}
	if got := (registry.Cursor{Last: 9}).Next(); got != 10 {
		t.Errorf("Next() = %d, want 10", got)
	}
}
