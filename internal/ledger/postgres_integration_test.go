//go:build integration

package ledger_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// setupPostgres recreates the ledger schema from the migrations and returns a
// bootstrapped PostgresLedger with one submitter and two officers.
func setupPostgres(t *testing.T) *ledger.PostgresLedger {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	t.Cleanup(db.Close)

	for _, f := range []string{"../../migrations/001_ledger.down.sql", "../../migrations/001_ledger.up.sql"} {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("apply %s: %v", f, err)
		}
	}

	l := ledger.NewPostgresLedger(db, zap.NewNop())
	if err := l.Bootstrap(ctx, admin, ledger.DefaultRequiredApprovals); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := l.GrantSubmitter(ctx, admin, submitter); err != nil {
		t.Fatalf("GrantSubmitter: %v", err)
	}
	for _, o := range []string{officer1, officer2} {
		if _, err := l.GrantOfficer(ctx, admin, o); err != nil {
			t.Fatalf("GrantOfficer(%s): %v", o, err)
		}
	}
	return l
}

func TestPostgres_bootstrapIsIdempotent(t *testing.T) {
	l := setupPostgres(t)

	before, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Bootstrap(ctx, "someone-else", 5); err != nil {
		t.Fatal(err)
	}
	after, _ := l.Len(ctx)
	if after != before {
		t.Errorf("second Bootstrap appended entries: %d -> %d", before, after)
	}
	if c, _ := l.GetCapability(ctx, "someone-else"); c != model.CapabilityNone {
		t.Errorf("second Bootstrap installed a new admin: %v", c)
	}
}

func TestPostgres_submitAndReview(t *testing.T) {
	l := setupPostgres(t)

	receipt, err := l.SubmitRecord(ctx, submitter, record(7))
	if err != nil {
		t.Fatalf("SubmitRecord: %v", err)
	}
	if _, err := l.SubmitRecord(ctx, submitter, record(7)); !errors.Is(err, model.ErrDuplicateID) {
		t.Errorf("duplicate: got %v", err)
	}
	if _, err := l.SubmitRecord(ctx, officer1, record(8)); !errors.Is(err, model.ErrNotAuthorized) {
		t.Errorf("officer submit: got %v", err)
	}

	events, err := l.SubmissionEvents(ctx, model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].RecordID != 7 || events[0].Sequence != receipt.Sequence {
		t.Errorf("events: %+v", events)
	}

	if _, err := l.SubmitReview(ctx, officer1, 7, model.DecisionApprove); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SubmitReview(ctx, officer1, 7, model.DecisionApprove); !errors.Is(err, model.ErrAlreadyVoted) {
		t.Errorf("second vote: got %v", err)
	}
	rec, err := l.GetRecord(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != model.StatusPending || rec.Approvals != 1 {
		t.Errorf("after one approval: %+v", rec)
	}

	if _, err := l.SubmitReview(ctx, officer2, 7, model.DecisionApprove); err != nil {
		t.Fatal(err)
	}
	rec, _ = l.GetRecord(ctx, 7)
	if rec.Status != model.StatusApproved {
		t.Errorf("after threshold: %v", rec.Status)
	}

	votes, err := l.ReviewEvents(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(votes) != 2 || votes[0].Officer != officer1 || votes[1].Officer != officer2 {
		t.Errorf("votes: %+v", votes)
	}

	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if _, err := l.GetRecord(ctx, 404); !errors.Is(err, model.ErrRecordNotFound) {
		t.Errorf("unknown record: got %v", err)
	}
	if _, err := l.Get(ctx, 1<<40); !errors.Is(err, ledger.ErrEntryNotFound) {
		t.Errorf("entry past tip: got %v", err)
	}
}

func TestPostgres_concurrentVotesChainStaysValid(t *testing.T) {
	l := setupPostgres(t)
	if _, err := l.SetRequiredApprovals(ctx, admin, 5); err != nil {
		t.Fatal(err)
	}
	for id := uint64(1); id <= 4; id++ {
		if _, err := l.SubmitRecord(ctx, submitter, record(id)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for id := uint64(1); id <= 4; id++ {
		for _, o := range []string{officer1, officer2} {
			wg.Add(1)
			go func(id uint64, o string) {
				defer wg.Done()
				if _, err := l.SubmitReview(context.Background(), o, id, model.DecisionReject); err != nil {
					t.Errorf("review %d by %s: %v", id, o, err)
				}
			}(id, o)
		}
	}
	wg.Wait()

	if err := l.Verify(ctx); err != nil {
		t.Fatalf("chain broken under concurrent writes: %v", err)
	}
	for id := uint64(1); id <= 4; id++ {
		rec, err := l.GetRecord(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Rejections != 2 || rec.Status != model.StatusPending {
			t.Errorf("record %d: %+v", id, rec)
		}
	}
}
