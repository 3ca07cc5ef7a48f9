package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosh-sh/gosh-sub009/internal/db"
	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/onboarding"
)

var importOwner string

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List repository imports",
	Long: `List all repository imports with their current state.

Examples:
  goshctl imports                      # List all imports
  goshctl imports --owner a@b.com      # List one user's imports`,
	RunE: runImports,
}

var importsAddCmd = &cobra.Command{
	Use:   "add <source-url> <dao/repo>",
	Short: "Register a repository import",
	Long: `Register one repository for onboarding. The orchestrator daemon picks it
up on its next scan.

Example:
  goshctl imports add https://github.com/acme/widgets acme/widgets --owner dev@acme.io`,
	Args: cobra.ExactArgs(2),
	RunE: runImportsAdd,
}

func init() {
	importsCmd.Flags().StringVar(&importOwner, "owner", "", "filter by owner email")
	importsAddCmd.Flags().StringVar(&importOwner, "owner", "", "owner email (required)")
	importsCmd.AddCommand(importsAddCmd)
	rootCmd.AddCommand(importsCmd)
}

func runImports(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var (
		imports []models.RepoImport
		err     error
	)
	if importOwner != "" {
		imports, err = dbClient.ListImportsByOwner(ctx, importOwner)
	} else {
		imports, err = dbClient.ListRepoImports(ctx)
	}
	if err != nil {
		return fmt.Errorf("list imports: %w", err)
	}

	if len(imports) == 0 {
		fmt.Println("No imports found")
		return nil
	}

	fmt.Printf("%-38s %-30s %-10s %s\n", "ID", "TARGET", "STATE", "OWNER")
	fmt.Println("----------------------------------------------------------------------------------------------")

	for _, imp := range imports {
		state := "pending"
		switch {
		case imp.Ignore:
			state = "ignored"
		case imp.CompletedAt != nil:
			state = "completed"
		case imp.SizeUnits != nil:
			state = "sized"
		}
		fmt.Printf("%-38s %-30s %-10s %s\n",
			models.MustRecordIDString(imp.ID), imp.Target, state, imp.Owner)
		if verbose && imp.Resolution != nil {
			fmt.Printf("    resolution: %s\n", *imp.Resolution)
		}
	}
	return nil
}

func runImportsAdd(cmd *cobra.Command, args []string) error {
	sourceURL, target := args[0], args[1]

	if importOwner == "" {
		exitWithError("--owner is required")
	}
	if _, _, err := onboarding.SplitTarget(target); err != nil {
		return err
	}

	imp, err := dbClient.CreateRepoImport(context.Background(), db.RepoImportInput{
		ID:        uuid.New().String(),
		SourceURL: sourceURL,
		Target:    target,
		Owner:     importOwner,
	})
	if err != nil {
		return fmt.Errorf("create import: %w", err)
	}

	fmt.Printf("Import registered: %s (%s)\n", models.MustRecordIDString(imp.ID), imp.Target)
	return nil
}
