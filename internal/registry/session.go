package registry

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// Session is an actor's view of the registry for one sitting. The actor's
// capability is resolved once by Open and decides the concrete type:
//
//	CapabilityNone      *GuestSession
//	CapabilitySubmitter *SubmitterSession
//	CapabilityOfficer   *OfficerSession
//	CapabilityAdmin     *AdminSession
//
// Callers branch with a type switch on the returned Session.
type Session interface {
	Actor() string
	Capability() model.Capability

	// Records refreshes the session's view from the ledger.
	Records(ctx context.Context) ([]model.LandRecord, error)

	// VerifyMedia checks a record's stored media against its digest.
	VerifyMedia(ctx context.Context, rec *model.LandRecord) error
}

// Open resolves actor's capability and returns the matching session.
// If the capability cannot be resolved Open returns an error and no session;
// the actor must then be treated as having no role.
func Open(ctx context.Context, svc *Service, actor string) (Session, error) {
	actor, err := model.NormalizeAccount(actor)
	if err != nil {
		return nil, err
	}
	c, err := svc.Resolver().Resolve(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", actor, err)
	}

	base := baseSession{
		svc:     svc,
		actor:   actor,
		view:    svc.NewReconstructor(),
		builder: svc.Builder(),
	}
	switch c {
	case model.CapabilitySubmitter:
		return &SubmitterSession{baseSession: base}, nil
	case model.CapabilityOfficer:
		return &OfficerSession{baseSession: base, tracker: svc.NewTracker()}, nil
	case model.CapabilityAdmin:
		return &AdminSession{baseSession: base}, nil
	default:
		return &GuestSession{baseSession: base}, nil
	}
}

type baseSession struct {
	svc     *Service
	actor   string
	view    *Reconstructor
	builder *Builder
}

func (s *baseSession) Actor() string { return s.actor }

func (s *baseSession) Records(ctx context.Context) ([]model.LandRecord, error) {
	return s.view.Refresh(ctx)
}

func (s *baseSession) VerifyMedia(ctx context.Context, rec *model.LandRecord) error {
	return s.builder.VerifyMedia(ctx, rec)
}

// View exposes the session's reconstructor, e.g. to inspect or reset its cursor.
func (s *baseSession) View() *Reconstructor { return s.view }

// GuestSession is opened for actors without a role. It can only read.
type GuestSession struct{ baseSession }

func (*GuestSession) Capability() model.Capability { return model.CapabilityNone }

// SubmitterSession can upload media and submit records.
type SubmitterSession struct{ baseSession }

func (*SubmitterSession) Capability() model.Capability { return model.CapabilitySubmitter }

// PrepareMedia hashes and uploads a media file for a later Submit.
func (s *SubmitterSession) PrepareMedia(ctx context.Context, filename string, data []byte) (*Media, error) {
	return s.builder.PrepareMedia(ctx, filename, data)
}

// Check validates c's non-media fields without contacting the ledger.
func (s *SubmitterSession) Check(c model.Candidate) error {
	_, err := s.builder.CheckFields(c)
	return err
}

// Submit validates c and writes it to the ledger.
func (s *SubmitterSession) Submit(ctx context.Context, c model.Candidate) (*model.LandRecord, *model.Receipt, error) {
	return s.builder.Submit(ctx, s.actor, c)
}

// OfficerSession can review pending records.
type OfficerSession struct {
	baseSession
	tracker *Tracker
}

func (*OfficerSession) Capability() model.Capability { return model.CapabilityOfficer }

// Actionable refreshes the view and returns the records this officer can
// still vote on.
func (s *OfficerSession) Actionable(ctx context.Context) ([]model.LandRecord, error) {
	view, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return s.tracker.ListActionable(ctx, view, s.actor)
}

// Review votes on record id.
func (s *OfficerSession) Review(ctx context.Context, id uint64, decision model.Decision) (*model.Receipt, error) {
	return s.tracker.Review(ctx, s.actor, model.CapabilityOfficer, id, decision)
}

// AdminSession manages roles and the approval threshold. Its writes only
// return the ledger's acknowledgement; the effect is seen on the next read.
type AdminSession struct{ baseSession }

func (*AdminSession) Capability() model.Capability { return model.CapabilityAdmin }

// GrantOfficer gives account the Officer role.
func (s *AdminSession) GrantOfficer(ctx context.Context, account string) (*model.Receipt, error) {
	account, err := model.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return s.svc.client.GrantOfficer(ctx, s.actor, account)
}

// GrantSubmitter gives account the Submitter role.
func (s *AdminSession) GrantSubmitter(ctx context.Context, account string) (*model.Receipt, error) {
	account, err := model.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return s.svc.client.GrantSubmitter(ctx, s.actor, account)
}

// SetRequiredApprovals changes how many matching votes finalise a record.
func (s *AdminSession) SetRequiredApprovals(ctx context.Context, n int) (*model.Receipt, error) {
	if n < 1 {
		return nil, &model.ValidationError{Field: "required_approvals", Reason: "must be at least 1"}
	}
	return s.svc.client.SetRequiredApprovals(ctx, s.actor, n)
}
