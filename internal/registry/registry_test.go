package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/digest"
	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	admin     = "0x00000000000000000000000000000000000000aa"
	submitter = "alice"
	officer1  = "bob"
	officer2  = "carol"
	stranger  = "mallory"
)

// ── Stub ledger ───────────────────────────────────────────────────────────────

// flakyLedger wraps a MemoryLedger and injects failures and duplicate events.
type flakyLedger struct {
	*ledger.MemoryLedger

	mu          sync.RWMutex
	failRecords map[uint64]bool
	absent      map[uint64]bool
	failEvents  bool
	failCaps    bool
	extraEvents []model.SubmissionEvent
	froms       []model.Sequence
}

func newFlakyLedger(t *testing.T) *flakyLedger {
	t.Helper()
	ctx := context.Background()
	l := ledger.New(admin)
	if _, err := l.GrantSubmitter(ctx, admin, submitter); err != nil {
		t.Fatalf("GrantSubmitter: %v", err)
	}
	for _, o := range []string{officer1, officer2} {
		if _, err := l.GrantOfficer(ctx, admin, o); err != nil {
			t.Fatalf("GrantOfficer: %v", err)
		}
	}
	return &flakyLedger{
		MemoryLedger: l,
		failRecords:  make(map[uint64]bool),
		absent:       make(map[uint64]bool),
	}
}

func (f *flakyLedger) GetCapability(ctx context.Context, actor string) (model.Capability, error) {
	f.mu.RLock()
	fail := f.failCaps
	f.mu.RUnlock()
	if fail {
		return model.CapabilityAdmin, model.Unavailable("get capability", errors.New("connection reset"))
	}
	return f.MemoryLedger.GetCapability(ctx, actor)
}

func (f *flakyLedger) GetRecord(ctx context.Context, id uint64) (*model.LandRecord, error) {
	f.mu.RLock()
	fail, absent := f.failRecords[id], f.absent[id]
	f.mu.RUnlock()
	if fail {
		return nil, model.Unavailable("get record", errors.New("timeout"))
	}
	if absent {
		return &model.LandRecord{}, nil
	}
	return f.MemoryLedger.GetRecord(ctx, id)
}

func (f *flakyLedger) SubmissionEvents(ctx context.Context, from model.Sequence) ([]model.SubmissionEvent, error) {
	f.mu.Lock()
	f.froms = append(f.froms, from)
	fail, extra := f.failEvents, f.extraEvents
	f.mu.Unlock()
	if fail {
		return nil, model.Unavailable("submission events", errors.New("connection refused"))
	}
	events, err := f.MemoryLedger.SubmissionEvents(ctx, from)
	if err != nil {
		return nil, err
	}
	return append(events, extra...), nil
}

func (f *flakyLedger) set(fn func(f *flakyLedger)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// ── Stub blob store ───────────────────────────────────────────────────────────

type memBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{blobs: make(map[string][]byte)} }

func (b *memBlobs) Upload(_ context.Context, filename string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := fmt.Sprintf("/uploads/%d-%s", len(b.blobs), filename)
	b.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (b *memBlobs) Download(_ context.Context, ref string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return data, nil
}

func (b *memBlobs) tamper(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[ref] = append(b.blobs[ref], '!')
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type env struct {
	ledger *flakyLedger
	blobs  *memBlobs
	svc    *registry.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fl := newFlakyLedger(t)
	blobs := newMemBlobs()
	svc := registry.New(fl, nil, zap.NewNop())
	svc.SetBlobStore(blobs)
	svc.SetFetchConcurrency(4)
	return &env{ledger: fl, blobs: blobs, svc: svc}
}

func candidate(id string) model.Candidate {
	return model.Candidate{
		ID:              id,
		OwnerName:       "A",
		LocationAddress: "X",
		AreaSize:        "10",
		ContentDigest:   "0xabc0000000000000000000000000000000000000000000000000000000000000",
		MediaReference:  "/uploads/a.png",
	}
}

func (e *env) submit(t *testing.T, id string) {
	t.Helper()
	if _, _, err := e.svc.Builder().Submit(context.Background(), submitter, candidate(id)); err != nil {
		t.Fatalf("Submit(%s): %v", id, err)
	}
}

func ids(records []model.LandRecord) []uint64 {
	out := make([]uint64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ── Role resolver ─────────────────────────────────────────────────────────────

func TestResolve(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.svc.Resolver()

	tests := []struct {
		actor string
		want  model.Capability
	}{
		{submitter, model.CapabilitySubmitter},
		{officer1, model.CapabilityOfficer},
		{"0x00000000000000000000000000000000000000AA", model.CapabilityAdmin},
		{stranger, model.CapabilityNone},
	}
	for _, tt := range tests {
		got, err := r.Resolve(ctx, tt.actor)
		if err != nil {
			t.Errorf("Resolve(%s): %v", tt.actor, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%s) = %v, want %v", tt.actor, got, tt.want)
		}
	}

	if _, err := r.Resolve(ctx, "  "); !errors.Is(err, model.ErrValidation) {
		t.Errorf("empty actor: expected validation error, got %v", err)
	}
}

func TestResolve_failureIsNeverPrivileged(t *testing.T) {
	e := newEnv(t)
	e.ledger.set(func(f *flakyLedger) { f.failCaps = true })

	c, err := e.svc.Resolver().Resolve(context.Background(), admin)
	if !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if c != model.CapabilityNone {
		t.Errorf("capability on failure: got %v, want None", c)
	}

	if _, err := registry.Open(context.Background(), e.svc, admin); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Open on failure: got %v", err)
	}
}

// ── Submission builder ────────────────────────────────────────────────────────

func TestBuild_firstFailingField(t *testing.T) {
	b := newEnv(t).svc.Builder()

	tests := []struct {
		name  string
		mod   func(c *model.Candidate)
		field string
	}{
		{"missing id", func(c *model.Candidate) { c.ID = "" }, "id"},
		{"non-numeric id", func(c *model.Candidate) { c.ID = "7a" }, "id"},
		{"zero id", func(c *model.Candidate) { c.ID = "0" }, "id"},
		{"negative id", func(c *model.Candidate) { c.ID = "-3" }, "id"},
		{"id beyond int64", func(c *model.Candidate) { c.ID = "9223372036854775808" }, "id"},
		{"blank owner", func(c *model.Candidate) { c.OwnerName = "   " }, "owner_name"},
		{"blank address", func(c *model.Candidate) { c.LocationAddress = "" }, "location_address"},
		{"blank area", func(c *model.Candidate) { c.AreaSize = "\t" }, "area_size"},
		{"not hashed", func(c *model.Candidate) { c.ContentDigest = "" }, "content_digest"},
		{"bad digest", func(c *model.Candidate) { c.ContentDigest = "0xabc" }, "content_digest"},
		{"not uploaded", func(c *model.Candidate) { c.MediaReference = " " }, "media_reference"},
		{"owner before id", func(c *model.Candidate) { c.OwnerName = ""; c.ID = "x" }, "id"},
		{"owner before media", func(c *model.Candidate) { c.OwnerName = ""; c.MediaReference = "" }, "owner_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate("7")
			tt.mod(&c)
			_, err := b.Build(c)
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field: got %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestBuild_normalises(t *testing.T) {
	b := newEnv(t).svc.Builder()
	c := candidate(" 7 ")
	c.OwnerName = "  A  "
	c.ContentDigest = "0XABC0000000000000000000000000000000000000000000000000000000000000"

	rec, err := b.Build(c)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != 7 || rec.OwnerName != "A" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ContentDigest != "0xabc0000000000000000000000000000000000000000000000000000000000000" {
		t.Errorf("digest not canonical: %q", rec.ContentDigest)
	}
}

func TestCheckFields_ignoresMedia(t *testing.T) {
	b := newEnv(t).svc.Builder()
	c := candidate("7")
	c.ContentDigest = ""
	c.MediaReference = ""
	if _, err := b.CheckFields(c); err != nil {
		t.Errorf("media fields should not be checked: %v", err)
	}
	c.AreaSize = ""
	var ve *model.ValidationError
	if _, err := b.CheckFields(c); !errors.As(err, &ve) || ve.Field != "area_size" {
		t.Errorf("expected area_size error, got %v", err)
	}
}

func TestSubmit_validationDoesNotContactLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	before, _ := e.ledger.Len(ctx)

	c := candidate("7")
	c.AreaSize = ""
	if _, _, err := e.svc.Builder().Submit(ctx, submitter, c); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	after, _ := e.ledger.Len(ctx)
	if after != before {
		t.Errorf("ledger changed: %d -> %d entries", before, after)
	}
}

func TestSubmit_duplicateIDConflicts(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "7")

	for range 3 {
		_, _, err := e.svc.Builder().Submit(context.Background(), submitter, candidate("7"))
		if !errors.Is(err, model.ErrConflict) {
			t.Fatalf("resubmission: expected ErrConflict, got %v", err)
		}
	}

	events, _ := e.ledger.SubmissionEvents(context.Background(), model.GenesisSequence)
	if len(events) != 1 {
		t.Errorf("submission events: got %d, want 1", len(events))
	}
}

func TestSubmit_noRoleIsUnauthorized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, _, err := e.svc.Builder().Submit(ctx, stranger, candidate("7"))
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	events, _ := e.ledger.SubmissionEvents(ctx, model.GenesisSequence)
	if len(events) != 0 {
		t.Errorf("unauthorized submit emitted %d events", len(events))
	}
}

func TestSubmit_scenarioRecord7(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "7")

	view, err := e.svc.NewReconstructor().Reconstruct(context.Background(), model.GenesisSequence)
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 1 {
		t.Fatalf("view: got %d records, want 1", len(view))
	}
	rec := view[0]
	if rec.ID != 7 || rec.Status != model.StatusPending || rec.OwnerName != "A" || rec.MediaReference != "/uploads/a.png" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

// ── Media ─────────────────────────────────────────────────────────────────────

func TestMedia_integrity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.svc.Builder()
	data := []byte("%PDF-1.7 deed of parcel 7")

	media, err := b.PrepareMedia(ctx, "deed.pdf", data)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := digest.New(digest.SHA256)
	if media.Digest != h.Sum(data) {
		t.Errorf("digest: got %s, want %s", media.Digest, h.Sum(data))
	}

	c := candidate("7")
	c.ContentDigest, c.MediaReference = media.Digest, media.Reference
	rec, _, err := b.Submit(ctx, submitter, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.VerifyMedia(ctx, rec); err != nil {
		t.Errorf("VerifyMedia on untouched blob: %v", err)
	}

	e.blobs.tamper(media.Reference)
	if err := b.VerifyMedia(ctx, rec); !errors.Is(err, registry.ErrMediaMismatch) {
		t.Errorf("VerifyMedia on altered blob: got %v", err)
	}
}

func TestMedia_limits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.svc.Builder()

	if _, err := b.PrepareMedia(ctx, "empty.png", nil); !errors.Is(err, model.ErrValidation) {
		t.Errorf("empty media: got %v", err)
	}
	big := make([]byte, registry.MaxMediaBytes+1)
	if _, err := b.PrepareMedia(ctx, "big.png", big); !errors.Is(err, model.ErrValidation) {
		t.Errorf("oversized media: got %v", err)
	}

	bare := registry.New(e.ledger, nil, zap.NewNop())
	if _, err := bare.Builder().PrepareMedia(ctx, "a.png", []byte("x")); !errors.Is(err, registry.ErrNoBlobStore) {
		t.Errorf("no blob store: got %v", err)
	}
}

// ── Sessions ──────────────────────────────────────────────────────────────────

func TestOpen_dispatchesOnCapability(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		actor string
		want  model.Capability
	}{
		{stranger, model.CapabilityNone},
		{submitter, model.CapabilitySubmitter},
		{officer1, model.CapabilityOfficer},
		{admin, model.CapabilityAdmin},
	}
	for _, tt := range tests {
		s, err := registry.Open(ctx, e.svc, tt.actor)
		if err != nil {
			t.Fatalf("Open(%s): %v", tt.actor, err)
		}
		if s.Capability() != tt.want {
			t.Errorf("Open(%s).Capability() = %v, want %v", tt.actor, s.Capability(), tt.want)
		}
		var ok bool
		switch tt.want {
		case model.CapabilityNone:
			_, ok = s.(*registry.GuestSession)
		case model.CapabilitySubmitter:
			_, ok = s.(*registry.SubmitterSession)
		case model.CapabilityOfficer:
			_, ok = s.(*registry.OfficerSession)
		case model.CapabilityAdmin:
			_, ok = s.(*registry.AdminSession)
		}
		if !ok {
			t.Errorf("Open(%s) returned %T", tt.actor, s)
		}
	}
}

func TestAdminSession_grants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := registry.Open(ctx, e.svc, admin)
	if err != nil {
		t.Fatal(err)
	}
	as := s.(*registry.AdminSession)

	if _, err := as.GrantOfficer(ctx, "dave"); err != nil {
		t.Fatal(err)
	}
	if _, err := as.GrantSubmitter(ctx, " "); !errors.Is(err, model.ErrValidation) {
		t.Errorf("blank account: got %v", err)
	}
	if _, err := as.SetRequiredApprovals(ctx, 0); !errors.Is(err, model.ErrValidation) {
		t.Errorf("zero threshold: got %v", err)
	}

	// The grant is observed by a new session, not by the old one.
	ds, err := registry.Open(ctx, e.svc, "dave")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ds.(*registry.OfficerSession); !ok {
		t.Errorf("dave: got %T, want *OfficerSession", ds)
	}
}

func TestSubmitterSession_flow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := registry.Open(ctx, e.svc, submitter)
	if err != nil {
		t.Fatal(err)
	}
	ss := s.(*registry.SubmitterSession)

	media, err := ss.PrepareMedia(ctx, "a.png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatal(err)
	}
	c := candidate("12")
	c.ContentDigest, c.MediaReference = media.Digest, media.Reference
	if _, _, err := ss.Submit(ctx, c); err != nil {
		t.Fatal(err)
	}

	view, err := ss.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(view), []uint64{12}) {
		t.Errorf("view: %v", ids(view))
	}
	if err := ss.VerifyMedia(ctx, &view[0]); err != nil {
		t.Errorf("VerifyMedia: %v", err)
	}
}
