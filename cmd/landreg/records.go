package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
)

// ── whoami ───────────────────────────────────────────────────────────────────

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the configured account and its role on the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, c, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		if outputFormat == "json" {
			return printJSON(map[string]any{
				"account":    s.Actor(),
				"capability": s.Capability(),
				"label":      s.Capability().Label(),
			})
		}
		fmt.Printf("Account: %s\n", s.Actor())
		fmt.Printf("Role:    %s\n", s.Capability().Label())
		return nil
	},
}

// ── records ──────────────────────────────────────────────────────────────────

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List all land records, rebuilt from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, c, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		view, err := s.Records(cmd.Context())
		if err != nil {
			return err
		}
		return printRecords(view)
	},
}

// ── submit ───────────────────────────────────────────────────────────────────

var (
	subID           string
	subOwner        string
	subLocation     string
	subArea         string
	subFile         string
	subDigest       string
	subMediaRef     string
	subDocumentHash string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Register a new land record (Submitter only)",
	Long: `Register a new land record.

With --file the media is hashed and uploaded to the node first and the
resulting digest and reference are submitted with the record:

  landreg submit --id 7 --owner "A. Owner" --location "1 Main St" \
      --area "500 sqm" --file deed.pdf

Alternatively pass --digest and --media-ref for media stored earlier.`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&subID, "id", "", "record id (positive integer, unique on the ledger)")
	submitCmd.Flags().StringVar(&subOwner, "owner", "", "owner name")
	submitCmd.Flags().StringVar(&subLocation, "location", "", "location address")
	submitCmd.Flags().StringVar(&subArea, "area", "", "area size, as free text")
	submitCmd.Flags().StringVar(&subFile, "file", "", "supporting media file to hash and upload")
	submitCmd.Flags().StringVar(&subDigest, "digest", "", "content digest of media already uploaded")
	submitCmd.Flags().StringVar(&subMediaRef, "media-ref", "", "reference of media already uploaded")
	submitCmd.Flags().StringVar(&subDocumentHash, "document-hash", "", "optional hash of the legal document")
	submitCmd.MarkFlagsMutuallyExclusive("file", "digest")
	submitCmd.MarkFlagsMutuallyExclusive("file", "media-ref")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, c, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sub, ok := s.(*registry.SubmitterSession)
	if !ok {
		return requireRole(s, model.CapabilitySubmitter)
	}

	candidate := model.Candidate{
		ID:              subID,
		OwnerName:       subOwner,
		LocationAddress: subLocation,
		AreaSize:        subArea,
		ContentDigest:   subDigest,
		MediaReference:  subMediaRef,
		DocumentHash:    subDocumentHash,
	}

	// Validate before uploading so a bad record never leaves an orphaned blob.
	if subFile != "" {
		if err := sub.Check(candidate); err != nil {
			return err
		}

		data, err := os.ReadFile(subFile)
		if err != nil {
			return fmt.Errorf("read media: %w", err)
		}
		media, err := sub.PrepareMedia(ctx, filepath.Base(subFile), data)
		if err != nil {
			return err
		}
		candidate.ContentDigest = media.Digest
		candidate.MediaReference = media.Reference
		if outputFormat == "text" {
			fmt.Printf("Uploaded %s (%d bytes) as %s\n", filepath.Base(subFile), media.Size, media.Reference)
		}
	}

	rec, receipt, err := sub.Submit(ctx, candidate)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(map[string]any{"record": rec, "receipt": receipt})
	}
	fmt.Printf("Record %d submitted for review.\n", rec.ID)
	printReceipt(receipt)
	return nil
}

// ── verify-media ─────────────────────────────────────────────────────────────

var verifyMediaCmd = &cobra.Command{
	Use:   "verify-media <record-id>",
	Short: "Check a record's stored media against its on-ledger digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return &model.ValidationError{Field: "id", Reason: "must be a positive integer"}
		}
		ctx := cmd.Context()
		s, c, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		rec, err := c.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		verr := s.VerifyMedia(ctx, rec)
		if outputFormat == "json" {
			out := map[string]any{"id": id, "content_digest": rec.ContentDigest, "valid": verr == nil}
			if verr != nil {
				out["error"] = verr.Error()
			}
			if err := printJSON(out); err != nil {
				return err
			}
			return verr
		}
		if verr != nil {
			return verr
		}
		fmt.Printf("Record %d: media matches %s\n", id, rec.ContentDigest)
		return nil
	},
}
