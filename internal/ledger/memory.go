package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

type voteKey struct {
	recordID uint64
	officer  string
}

// MemoryLedger is an in-memory, thread-safe ledger. It is primarily useful
// for testing and for single-process deployments that do not require durable
// persistence across restarts.
type MemoryLedger struct {
	mu       sync.RWMutex
	entries  []*Entry
	admin    string
	roles    map[string]model.Capability
	records  map[uint64]*model.LandRecord
	votes    map[voteKey]model.ReviewEvent
	required int
}

// New creates a MemoryLedger initialised with the canonical genesis entry and
// admin holding the Admin capability (recorded as the first role event).
func New(admin string) *MemoryLedger {
	if norm, err := model.NormalizeAccount(admin); err == nil {
		admin = norm
	}
	l := &MemoryLedger{
		admin:    admin,
		roles:    make(map[string]model.Capability),
		records:  make(map[uint64]*model.LandRecord),
		votes:    make(map[voteKey]model.ReviewEvent),
		required: DefaultRequiredApprovals,
	}
	l.entries = append(l.entries, newGenesis(time.Now().UTC()))
	if admin != "" {
		l.roles[admin] = model.CapabilityAdmin
		// Cannot fail: the payload is a plain struct.
		_, _ = l.appendLocked(KindRole, systemActor, 0, rolePayload{Account: admin, Capability: model.CapabilityAdmin.String()})
	}
	return l
}

// appendLocked chains a new entry onto the log. Callers hold l.mu.
func (l *MemoryLedger) appendLocked(kind, actor string, recordID uint64, payload any) (*Entry, error) {
	dataHash, err := payloadHash(payload)
	if err != nil {
		return nil, err
	}
	prev := l.entries[len(l.entries)-1]
	entry := &Entry{
		Sequence:  model.Sequence(len(l.entries)),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Actor:     actor,
		RecordID:  recordID,
		DataHash:  dataHash,
		PrevHash:  prev.Hash,
	}
	entry.Hash = hashEntry(entry)
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *MemoryLedger) capabilityLocked(account string) model.Capability {
	return l.roles[account]
}

// GetCapability implements Client.
func (l *MemoryLedger) GetCapability(_ context.Context, actor string) (model.Capability, error) {
	actor, err := model.NormalizeAccount(actor)
	if err != nil {
		return model.CapabilityNone, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capabilityLocked(actor), nil
}

// SubmitRecord implements Client.
func (l *MemoryLedger) SubmitRecord(_ context.Context, actor string, rec *model.LandRecord) (*model.Receipt, error) {
	actor, err := model.NormalizeAccount(actor)
	if err != nil {
		return nil, err
	}
	if err := checkSubmission(rec); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capabilityLocked(actor) != model.CapabilitySubmitter {
		return nil, model.ErrNotAuthorized
	}
	if _, exists := l.records[rec.ID]; exists {
		return nil, fmt.Errorf("record %d: %w", rec.ID, model.ErrDuplicateID)
	}

	stored := newPending(rec, actor)
	stored.SubmittedAt = time.Now().UTC()
	entry, err := l.appendLocked(KindSubmission, actor, rec.ID, stored)
	if err != nil {
		return nil, err
	}
	l.records[rec.ID] = stored
	return entry.Receipt(), nil
}

// GetRecord implements Client.
func (l *MemoryLedger) GetRecord(_ context.Context, id uint64) (*model.LandRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrRecordNotFound)
	}
	cp := *rec
	return &cp, nil
}

// HasVoted implements Client.
func (l *MemoryLedger) HasVoted(_ context.Context, id uint64, officer string) (bool, error) {
	officer, err := model.NormalizeAccount(officer)
	if err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, voted := l.votes[voteKey{recordID: id, officer: officer}]
	return voted, nil
}

// SubmitReview implements Client.
func (l *MemoryLedger) SubmitReview(_ context.Context, actor string, id uint64, decision model.Decision) (*model.Receipt, error) {
	actor, err := model.NormalizeAccount(actor)
	if err != nil {
		return nil, err
	}
	if err := checkDecision(decision); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capabilityLocked(actor) != model.CapabilityOfficer {
		return nil, model.ErrNotAuthorized
	}
	rec, ok := l.records[id]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrRecordNotFound)
	}
	if rec.Status != model.StatusPending {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrNotPending)
	}
	key := voteKey{recordID: id, officer: actor}
	if _, voted := l.votes[key]; voted {
		return nil, fmt.Errorf("record %d: %w", id, model.ErrAlreadyVoted)
	}

	entry, err := l.appendLocked(KindReview, actor, id, reviewPayload{Officer: actor, Decision: decision})
	if err != nil {
		return nil, err
	}
	l.votes[key] = model.ReviewEvent{RecordID: id, Officer: actor, Decision: decision, Sequence: entry.Sequence}
	applyVote(rec, decision, l.required)
	return entry.Receipt(), nil
}

// SubmissionEvents implements Client.
func (l *MemoryLedger) SubmissionEvents(_ context.Context, from model.Sequence) ([]model.SubmissionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var events []model.SubmissionEvent
	for _, e := range l.entries {
		if e.Sequence < from || e.Kind != KindSubmission {
			continue
		}
		events = append(events, model.SubmissionEvent{RecordID: e.RecordID, Sequence: e.Sequence})
	}
	return events, nil
}

// ReviewEvents implements Client.
func (l *MemoryLedger) ReviewEvents(_ context.Context, id uint64) ([]model.ReviewEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var events []model.ReviewEvent
	for key, ev := range l.votes {
		if key.recordID == id {
			events = append(events, ev)
		}
	}
	slices.SortFunc(events, func(a, b model.ReviewEvent) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return events, nil
}

// GrantOfficer implements Client.
func (l *MemoryLedger) GrantOfficer(_ context.Context, admin, account string) (*model.Receipt, error) {
	return l.grant(admin, account, model.CapabilityOfficer)
}

// GrantSubmitter implements Client.
func (l *MemoryLedger) GrantSubmitter(_ context.Context, admin, account string) (*model.Receipt, error) {
	return l.grant(admin, account, model.CapabilitySubmitter)
}

func (l *MemoryLedger) grant(admin, account string, c model.Capability) (*model.Receipt, error) {
	admin, err := model.NormalizeAccount(admin)
	if err != nil {
		return nil, err
	}
	account, err = model.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capabilityLocked(admin) != model.CapabilityAdmin {
		return nil, model.ErrNotAuthorized
	}
	if account == l.admin {
		return nil, errAdminRoleFixed
	}
	entry, err := l.appendLocked(KindRole, admin, 0, rolePayload{Account: account, Capability: c.String()})
	if err != nil {
		return nil, err
	}
	l.roles[account] = c
	return entry.Receipt(), nil
}

// SetRequiredApprovals implements Client.
func (l *MemoryLedger) SetRequiredApprovals(_ context.Context, admin string, n int) (*model.Receipt, error) {
	admin, err := model.NormalizeAccount(admin)
	if err != nil {
		return nil, err
	}
	if err := checkThreshold(n); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capabilityLocked(admin) != model.CapabilityAdmin {
		return nil, model.ErrNotAuthorized
	}
	entry, err := l.appendLocked(KindThreshold, admin, 0, thresholdPayload{RequiredApprovals: n})
	if err != nil {
		return nil, err
	}
	l.required = n
	return entry.Receipt(), nil
}

// Close implements Client. The in-memory ledger holds no external resources.
func (l *MemoryLedger) Close() error { return nil }

// Get implements Chain.
func (l *MemoryLedger) Get(_ context.Context, seq model.Sequence) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= model.Sequence(len(l.entries)) {
		return nil, fmt.Errorf("sequence %d: %w", seq, ErrEntryNotFound)
	}
	cp := *l.entries[seq]
	return &cp, nil
}

// Len implements Chain.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Chain. It walks the chain and checks that all hashes
// are consistent. The genesis entry (sequence 0) is validated against GenesisHash.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, curr := range l.entries {
		if i == 0 {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
			}
			continue
		}
		if err := verifyLink(l.entries[i-1], curr); err != nil {
			return err
		}
	}
	return nil
}

// Root implements Chain.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}
