package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

type voteKey struct {
	recordID uint64
	officer  string
}

// Tracker holds the per-session review state of (record, officer) pairs.
// A pair moves from not-voted to voted only when the ledger acknowledges a
// review, and never moves back. The outcome of a vote is decided by the
// ledger; callers re-read the view to observe it.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	client      ledger.Client
	concurrency int
	logger      *zap.Logger

	mu    sync.RWMutex
	voted map[voteKey]struct{}
}

// NewTracker creates a Tracker with no votes recorded.
func NewTracker(client ledger.Client, concurrency int, logger *zap.Logger) *Tracker {
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Tracker{
		client:      client,
		concurrency: concurrency,
		logger:      logger,
		voted:       make(map[voteKey]struct{}),
	}
}

func (t *Tracker) hasVotedLocally(id uint64, officer string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.voted[voteKey{recordID: id, officer: officer}]
	return ok
}

// ListActionable returns the records in view that are Pending and that officer
// has not voted on, in view order. Votes recorded in this session are checked
// first; the rest are confirmed with the ledger.
func (t *Tracker) ListActionable(ctx context.Context, view []model.LandRecord, officer string) ([]model.LandRecord, error) {
	officer, err := model.NormalizeAccount(officer)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, len(view))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, rec := range view {
		if rec.Status != model.StatusPending || t.hasVotedLocally(rec.ID, officer) {
			continue
		}
		g.Go(func() error {
			voted, err := t.client.HasVoted(gctx, rec.ID, officer)
			if err != nil {
				return fmt.Errorf("has voted on record %d: %w", rec.ID, err)
			}
			keep[i] = !voted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var actionable []model.LandRecord
	for i, rec := range view {
		if keep[i] {
			actionable = append(actionable, rec)
		}
	}
	return actionable, nil
}

// Review submits officer's decision on record id. capability is the
// officer's resolved capability for this session.
//
// Preconditions are checked in order: capability is Officer, the pair is not
// voted in this session, the record is Pending on the ledger, and the ledger
// has no vote from officer. A concurrent vote from another session can still
// land between the last check and the write; the ledger then rejects it.
// Reviews are never retried.
func (t *Tracker) Review(ctx context.Context, officer string, capability model.Capability, id uint64, decision model.Decision) (*model.Receipt, error) {
	receipt, err := t.review(ctx, officer, capability, id, decision)
	landregReviewsTotal.WithLabelValues(decision.String(), resultLabel(err)).Inc()
	if err != nil {
		t.logger.Info("review not accepted",
			zap.Uint64("record_id", id),
			zap.String("officer", officer),
			zap.Stringer("decision", decision),
			zap.Error(err),
		)
		return nil, err
	}
	t.logger.Info("review accepted",
		zap.Uint64("record_id", id),
		zap.String("officer", officer),
		zap.Stringer("decision", decision),
		zap.Uint64("seq", uint64(receipt.Sequence)),
	)
	return receipt, nil
}

func (t *Tracker) review(ctx context.Context, officer string, capability model.Capability, id uint64, decision model.Decision) (*model.Receipt, error) {
	if capability != model.CapabilityOfficer {
		return nil, model.ErrNotAuthorized
	}
	officer, err := model.NormalizeAccount(officer)
	if err != nil {
		return nil, err
	}
	if decision != model.DecisionApprove && decision != model.DecisionReject {
		return nil, &model.ValidationError{Field: "decision", Reason: "must be approve or reject"}
	}
	if id == 0 {
		return nil, &model.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	if t.hasVotedLocally(id, officer) {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrAlreadyVoted)
	}

	rec, err := t.client.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Present() {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrRecordNotFound)
	}
	if rec.Status != model.StatusPending {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrNotPending)
	}

	voted, err := t.client.HasVoted(ctx, id, officer)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrAlreadyVoted)
	}

	receipt, err := t.client.SubmitReview(ctx, officer, id, decision)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, model.Unavailable("submit review", errors.New("no acknowledgement from ledger"))
	}

	t.mu.Lock()
	t.voted[voteKey{recordID: id, officer: officer}] = struct{}{}
	t.mu.Unlock()
	return receipt, nil
}
