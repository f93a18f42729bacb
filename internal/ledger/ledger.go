// Package ledger defines the boundary between the registry core and the
// authoritative land ledger, and provides two ledger backends that enforce the
// ledger's rules themselves.
//
// The ledger keeps an append-only, hash-chained event log. The chain begins
// with a well-known genesis entry whose Hash equals GenesisHash (64 hex
// zeros); every later entry records the SHA-256 of its predecessor, so any
// tampering with history is detectable via Verify.
//
// Implementations of Client:
//   - MemoryLedger: in-process, for tests and single-process development.
//   - PostgresLedger: durable, used by the ledgerd node.
//   - client.Client (pkg/client): HTTP access to a remote ledgerd node.
package ledger

import (
	"context"
	"errors"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// DefaultRequiredApprovals is the number of matching officer votes a record
// needs before the ledger finalises it, until an admin changes it.
const DefaultRequiredApprovals = 2

// Client is the typed request/response surface of the ledger. It has no
// client-side state: every answer comes from the ledger.
//
// Errors match the kinds in package model: ErrUnavailable when the call
// could not complete, ErrUnauthorized/ErrNotAuthorized for capability
// mismatches, ErrConflict (ErrDuplicateID, ErrAlreadyVoted, ErrNotPending) for
// stale views, ErrRecordNotFound for ids the ledger has never seen.
type Client interface {
	// GetCapability returns the actor's capability; unknown actors are CapabilityNone.
	GetCapability(ctx context.Context, actor string) (model.Capability, error)

	// SubmitRecord registers a new record on behalf of actor. A successful
	// call emits exactly one SubmissionEvent for rec.ID.
	SubmitRecord(ctx context.Context, actor string, rec *model.LandRecord) (*model.Receipt, error)

	// GetRecord returns the current projection of record id.
	GetRecord(ctx context.Context, id uint64) (*model.LandRecord, error)

	// HasVoted reports whether officer has already voted on record id.
	HasVoted(ctx context.Context, id uint64, officer string) (bool, error)

	// SubmitReview records actor's vote on record id. The ledger alone decides
	// whether the vote finalises the record.
	SubmitReview(ctx context.Context, actor string, id uint64, decision model.Decision) (*model.Receipt, error)

	// SubmissionEvents returns all submission events at or after from,
	// ordered by sequence.
	SubmissionEvents(ctx context.Context, from model.Sequence) ([]model.SubmissionEvent, error)

	// ReviewEvents returns the votes cast on record id, ordered by sequence.
	ReviewEvents(ctx context.Context, id uint64) ([]model.ReviewEvent, error)

	// GrantOfficer gives account the Officer capability. Admin only.
	GrantOfficer(ctx context.Context, admin, account string) (*model.Receipt, error)

	// GrantSubmitter gives account the Submitter capability. Admin only.
	GrantSubmitter(ctx context.Context, admin, account string) (*model.Receipt, error)

	// SetRequiredApprovals changes the ledger's finalisation threshold. Admin only.
	SetRequiredApprovals(ctx context.Context, admin string, n int) (*model.Receipt, error)

	// Close releases the client's resources. The ledger itself is unaffected.
	Close() error
}

// ErrEntryNotFound is returned by Chain.Get for a sequence past the chain tip.
var ErrEntryNotFound = errors.New("ledger entry not found")

// Chain exposes the integrity view of the event log. Both backends implement it.
type Chain interface {
	// Get returns the entry at the given sequence.
	Get(ctx context.Context, seq model.Sequence) (*Entry, error)

	// Len returns the total number of entries (including the genesis entry).
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry (the chain tip).
	Root(ctx context.Context) (string, error)
}

// Backend is a ledger that also exposes its chain, as served by ledgerd.
type Backend interface {
	Client
	Chain
}
