package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/LandRegistry/internal/model"
	"github.com/jmerrifield20/LandRegistry/internal/registry"
)

// withAdmin opens a session and runs fn if the account is the ledger admin.
func withAdmin(ctx context.Context, fn func(*registry.AdminSession) (*model.Receipt, error)) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	adm, ok := s.(*registry.AdminSession)
	if !ok {
		return requireRole(s, model.CapabilityAdmin)
	}
	receipt, err := fn(adm)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(receipt)
	}
	printReceipt(receipt)
	return nil
}

var grantOfficerCmd = &cobra.Command{
	Use:   "grant-officer <account>",
	Short: "Give an account the Officer role (Admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd.Context(), func(a *registry.AdminSession) (*model.Receipt, error) {
			r, err := a.GrantOfficer(cmd.Context(), args[0])
			if err == nil && outputFormat == "text" {
				fmt.Printf("Granted Officer to %s.\n", args[0])
			}
			return r, err
		})
	},
}

var grantSubmitterCmd = &cobra.Command{
	Use:   "grant-submitter <account>",
	Short: "Give an account the Submitter role (Admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd.Context(), func(a *registry.AdminSession) (*model.Receipt, error) {
			r, err := a.GrantSubmitter(cmd.Context(), args[0])
			if err == nil && outputFormat == "text" {
				fmt.Printf("Granted Submitter to %s.\n", args[0])
			}
			return r, err
		})
	},
}

var setThresholdCmd = &cobra.Command{
	Use:   "set-threshold <n>",
	Short: "Set how many matching officer votes finalise a record (Admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return &model.ValidationError{Field: "required_approvals", Reason: "must be an integer"}
		}
		return withAdmin(cmd.Context(), func(a *registry.AdminSession) (*model.Receipt, error) {
			r, err := a.SetRequiredApprovals(cmd.Context(), n)
			if err == nil && outputFormat == "text" {
				fmt.Printf("Records now need %d matching votes.\n", n)
			}
			return r, err
		})
	},
}
