package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
)

// ── actionable ───────────────────────────────────────────────────────────────

var actionableCmd = &cobra.Command{
	Use:   "actionable",
	Short: "List pending records you have not yet voted on (Officer only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, c, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		off, ok := s.(*registry.OfficerSession)
		if !ok {
			return requireRole(s, model.CapabilityOfficer)
		}
		recs, err := off.Actionable(cmd.Context())
		if err != nil {
			return err
		}
		return printRecords(recs)
	},
}

// ── review ───────────────────────────────────────────────────────────────────

var reviewCmd = &cobra.Command{
	Use:   "review <record-id> <approve|reject>",
	Short: "Vote on a pending record (Officer only)",
	Long: `Vote to approve or reject a pending record.

Each officer votes once per record. The ledger finalises the record when
the configured number of matching votes is reached, so a single vote may
leave it Pending.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return &model.ValidationError{Field: "id", Reason: "must be a positive integer"}
		}
		decision, err := model.ParseDecision(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, c, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		off, ok := s.(*registry.OfficerSession)
		if !ok {
			return requireRole(s, model.CapabilityOfficer)
		}
		receipt, err := off.Review(ctx, id, decision)
		if err != nil {
			return err
		}

		// The outcome is whatever the ledger now says, not what the vote implies.
		rec, err := c.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"receipt": receipt, "record": rec})
		}
		fmt.Printf("Vote %q recorded on record %d.\n", decision, id)
		fmt.Printf("Status:      %s (%d approvals, %d rejections)\n", rec.Status, rec.Approvals, rec.Rejections)
		printReceipt(receipt)
		return nil
	},
}
