package registry

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// Cursor marks how far a reconstruction has read the submission event log.
// The zero Cursor is positioned at genesis.
type Cursor struct {
	// Last is the sequence of the last processed event, or
	// model.GenesisSequence before any event has been processed.
	Last model.Sequence `json:"last"`
}

// Next returns the sequence to replay from.
func (c Cursor) Next() model.Sequence {
	if c.Last == model.GenesisSequence {
		return model.GenesisSequence
	}
	return c.Last + 1
}

// advance moves the cursor past every event in events.
func (c Cursor) advance(events []model.SubmissionEvent) Cursor {
	for _, e := range events {
		if e.Sequence > c.Last {
			c.Last = e.Sequence
		}
	}
	return c
}

// Reconstructor derives the current record view from the ledger's submission
// events. The ledger has no "list records" primitive, so the view is always
// rebuilt from the event log and per-record reads.
//
// A Reconstructor keeps a cursor and the set of ids discovered so far so that
// Refresh only replays new events. It is safe for concurrent use.
type Reconstructor struct {
	client      ledger.Client
	concurrency int
	logger      *zap.Logger

	mu     sync.Mutex
	cursor Cursor
	ids    map[uint64]struct{}
}

// NewReconstructor creates a Reconstructor positioned at genesis. Record
// fetches run at most concurrency at a time.
func NewReconstructor(client ledger.Client, concurrency int, logger *zap.Logger) *Reconstructor {
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Reconstructor{
		client:      client,
		concurrency: concurrency,
		logger:      logger,
		ids:         make(map[uint64]struct{}),
	}
}

// Reconstruct replays every submission event at or after from and returns the
// current projection of each discovered record, ordered by id. It does not
// touch the cursor.
//
// Failure to read the event log is fatal. Individual record fetches that fail
// or return an absent record are dropped and logged. If ctx is cancelled the
// partial result is discarded.
func (r *Reconstructor) Reconstruct(ctx context.Context, from model.Sequence) ([]model.LandRecord, error) {
	events, err := r.events(ctx, from)
	if err != nil {
		return nil, err
	}
	ids := make(map[uint64]struct{}, len(events))
	collectIDs(ids, events)
	return r.fetch(ctx, ids)
}

// Refresh replays events since the cursor, merges their ids into the known
// set and re-fetches every known record. The cursor advances once the event
// read succeeds.
func (r *Reconstructor) Refresh(ctx context.Context) ([]model.LandRecord, error) {
	r.mu.Lock()
	from := r.cursor.Next()
	r.mu.Unlock()

	events, err := r.events(ctx, from)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	collectIDs(r.ids, events)
	r.cursor = r.cursor.advance(events)
	ids := maps.Clone(r.ids)
	r.mu.Unlock()

	return r.fetch(ctx, ids)
}

// Cursor returns the current cursor position.
func (r *Reconstructor) Cursor() Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Reset forgets all discovered ids and moves the cursor back to genesis.
func (r *Reconstructor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = Cursor{}
	clear(r.ids)
}

func (r *Reconstructor) events(ctx context.Context, from model.Sequence) ([]model.SubmissionEvent, error) {
	events, err := r.client.SubmissionEvents(ctx, from)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	landregEventsReplayedTotal.Add(float64(len(events)))
	return events, nil
}

// collectIDs adds the ids in events to set, skipping the absent id 0.
func collectIDs(set map[uint64]struct{}, events []model.SubmissionEvent) {
	for _, e := range events {
		if e.RecordID == 0 {
			continue
		}
		set[e.RecordID] = struct{}{}
	}
}

// fetch reads the projection of every id concurrently and returns the
// present ones sorted by id.
func (r *Reconstructor) fetch(ctx context.Context, ids map[uint64]struct{}) ([]model.LandRecord, error) {
	sorted := slices.Sorted(maps.Keys(ids))
	results := make([]*model.LandRecord, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range sorted {
		g.Go(func() error {
			rec, err := r.client.GetRecord(gctx, id)
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, model.ErrRecordNotFound):
				r.drop(id, "absent", nil)
			case err != nil:
				r.drop(id, "fetch_error", err)
			case !rec.Present():
				r.drop(id, "absent", nil)
			case rec.ID != id:
				r.drop(id, "id_mismatch", nil)
			default:
				results[i] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// results follows sorted, so records come out in ascending id order.
	records := make([]model.LandRecord, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (r *Reconstructor) drop(id uint64, reason string, err error) {
	landregRecordsDroppedTotal.WithLabelValues(reason).Inc()
	fields := []zap.Field{zap.Uint64("record_id", id), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("record dropped from view", fields...)
}
