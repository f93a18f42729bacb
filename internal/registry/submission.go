package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/digest"
	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// MaxMediaBytes is the largest media payload accepted for upload (10 MiB).
const MaxMediaBytes = 10 << 20

var (
	// ErrNoBlobStore is returned by media operations when no BlobStore is configured.
	ErrNoBlobStore = errors.New("no blob store configured")

	// ErrMediaMismatch means the stored media no longer hashes to the
	// record's on-ledger digest.
	ErrMediaMismatch = errors.New("media does not match the recorded content digest")
)

// Media is the result of PrepareMedia: the digest of the exact bytes and the
// reference under which they were stored.
type Media struct {
	Digest    string `json:"content_digest"`
	Reference string `json:"media_reference"`
	Size      int    `json:"size"`
}

// Builder validates candidates and writes them to the ledger.
type Builder struct {
	client ledger.Client
	hasher *digest.Hasher
	blobs  BlobStore
	logger *zap.Logger
}

// Build checks c's preconditions in order and returns the record to submit.
// The first failing field is named in the returned *model.ValidationError.
// Build never contacts the ledger.
func (b *Builder) Build(c model.Candidate) (*model.LandRecord, error) {
	rec, err := b.CheckFields(c)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.ContentDigest) == "" {
		return nil, &model.ValidationError{Field: "content_digest", Reason: "media has not been hashed"}
	}
	if rec.ContentDigest, err = digest.Parse(c.ContentDigest); err != nil {
		return nil, err
	}
	if rec.MediaReference == "" {
		return nil, &model.ValidationError{Field: "media_reference", Reason: "media has not been uploaded"}
	}
	return rec, nil
}

// CheckFields validates everything in c except the media fields, so a caller
// can reject a bad candidate before uploading anything.
func (b *Builder) CheckFields(c model.Candidate) (*model.LandRecord, error) {
	id, err := parseRecordID(c.ID)
	if err != nil {
		return nil, err
	}
	rec := &model.LandRecord{
		ID:              id,
		OwnerName:       strings.TrimSpace(c.OwnerName),
		LocationAddress: strings.TrimSpace(c.LocationAddress),
		AreaSize:        strings.TrimSpace(c.AreaSize),
		MediaReference:  strings.TrimSpace(c.MediaReference),
		DocumentHash:    strings.TrimSpace(c.DocumentHash),
	}
	for _, f := range []struct{ name, val string }{
		{"owner_name", rec.OwnerName},
		{"location_address", rec.LocationAddress},
		{"area_size", rec.AreaSize},
	} {
		if f.val == "" {
			return nil, &model.ValidationError{Field: f.name, Reason: "must not be empty"}
		}
	}
	return rec, nil
}

func parseRecordID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &model.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 || id > math.MaxInt64 {
		return 0, &model.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is not a positive integer", s)}
	}
	return id, nil
}

// Submit builds c and writes it to the ledger as actor. Ledger errors are
// returned unchanged and the write is never retried.
func (b *Builder) Submit(ctx context.Context, actor string, c model.Candidate) (*model.LandRecord, *model.Receipt, error) {
	rec, err := b.Build(c)
	if err != nil {
		landregSubmissionsTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, nil, err
	}

	receipt, err := b.client.SubmitRecord(ctx, actor, rec)
	landregSubmissionsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		b.logger.Info("record submission rejected",
			zap.Uint64("record_id", rec.ID), zap.String("actor", actor), zap.Error(err))
		return nil, nil, err
	}
	if receipt == nil {
		return nil, nil, model.Unavailable("submit record", errors.New("no acknowledgement from ledger"))
	}

	b.logger.Info("record submitted",
		zap.Uint64("record_id", rec.ID),
		zap.String("actor", actor),
		zap.Uint64("seq", uint64(receipt.Sequence)),
	)
	return rec, receipt, nil
}

// PrepareMedia hashes data and uploads it. The digest is computed over the
// exact bytes before they leave the process.
func (b *Builder) PrepareMedia(ctx context.Context, filename string, data []byte) (*Media, error) {
	if len(data) == 0 {
		return nil, &model.ValidationError{Field: "media", Reason: "file is empty"}
	}
	if len(data) > MaxMediaBytes {
		return nil, &model.ValidationError{Field: "media", Reason: "file exceeds the 10 MiB limit"}
	}
	if b.blobs == nil {
		return nil, ErrNoBlobStore
	}

	sum := b.hasher.Sum(data)
	ref, err := b.blobs.Upload(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	b.logger.Debug("media uploaded",
		zap.String("filename", filename),
		zap.String("reference", ref),
		zap.String("digest", sum),
		zap.Int("bytes", len(data)),
	)
	return &Media{Digest: sum, Reference: ref, Size: len(data)}, nil
}

// VerifyMedia downloads rec's media and checks it against rec.ContentDigest.
// It returns ErrMediaMismatch if the stored bytes were altered.
func (b *Builder) VerifyMedia(ctx context.Context, rec *model.LandRecord) error {
	if !rec.Present() {
		return &model.ValidationError{Field: "record", Reason: "missing"}
	}
	if b.blobs == nil {
		return ErrNoBlobStore
	}
	data, err := b.blobs.Download(ctx, rec.MediaReference)
	if err != nil {
		return fmt.Errorf("download media for record %d: %w", rec.ID, err)
	}
	if !b.hasher.Verify(data, rec.ContentDigest) {
		b.logger.Warn("media digest mismatch",
			zap.Uint64("record_id", rec.ID), zap.String("reference", rec.MediaReference))
		return fmt.Errorf("record %d: %w", rec.ID, ErrMediaMismatch)
	}
	return nil
}
