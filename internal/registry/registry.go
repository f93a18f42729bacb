// Package registry is the client-side core of the land registry. It resolves
// an actor's capability, builds and content-addresses submissions, derives the
// current record view by replaying the ledger's submission events, and tracks
// per-officer review state within a session.
//
// The ledger is the only source of truth. Nothing here caches the effect of a
// write: every view is reconstructed from ledger reads.
package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/digest"
	"github.com/jmerrifield20/LandRegistry/internal/ledger"
)

// DefaultFetchConcurrency bounds concurrent record fetches during reconstruction.
const DefaultFetchConcurrency = 8

// Uploader stores media bytes and returns an opaque reference to them.
// *client.Client satisfies this interface.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// Fetcher retrieves media previously stored by an Uploader.
// *client.Client satisfies this interface.
type Fetcher interface {
	Download(ctx context.Context, reference string) ([]byte, error)
}

// BlobStore is the upload collaborator used by the Builder.
type BlobStore interface {
	Uploader
	Fetcher
}

// Service holds the explicitly constructed dependencies shared by every
// session. It carries no per-session state and is safe for concurrent use.
type Service struct {
	client      ledger.Client
	hasher      *digest.Hasher
	blobs       BlobStore // nil = media upload and verification disabled
	concurrency int
	logger      *zap.Logger
}

// New creates a Service over client. hasher may be nil, in which case SHA-256
// is used.
func New(client ledger.Client, hasher *digest.Hasher, logger *zap.Logger) *Service {
	if hasher == nil {
		hasher, _ = digest.New(digest.SHA256)
	}
	return &Service{
		client:      client,
		hasher:      hasher,
		concurrency: DefaultFetchConcurrency,
		logger:      logger,
	}
}

// SetBlobStore configures the upload collaborator.
func (s *Service) SetBlobStore(b BlobStore) {
	s.blobs = b
}

// SetFetchConcurrency changes the reconstruction fetch bound. Values below 1
// are ignored.
func (s *Service) SetFetchConcurrency(n int) {
	if n >= 1 {
		s.concurrency = n
	}
}

// Resolver returns a role resolver over the service's ledger client.
func (s *Service) Resolver() *Resolver {
	return NewResolver(s.client)
}

// Builder returns a submission builder over the service's collaborators.
func (s *Service) Builder() *Builder {
	return &Builder{client: s.client, hasher: s.hasher, blobs: s.blobs, logger: s.logger}
}

// NewReconstructor returns a reconstructor with its cursor at genesis.
func (s *Service) NewReconstructor() *Reconstructor {
	return NewReconstructor(s.client, s.concurrency, s.logger)
}

// NewTracker returns an empty review tracker.
func (s *Service) NewTracker() *Tracker {
	return NewTracker(s.client, s.concurrency, s.logger)
}
