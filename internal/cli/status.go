package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize onboarding progress",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	bots, err := dbClient.ListDaoBots(ctx)
	if err != nil {
		return fmt.Errorf("list dao bots: %w", err)
	}
	imports, err := dbClient.ListRepoImports(ctx)
	if err != nil {
		return fmt.Errorf("list imports: %w", err)
	}
	jobs, err := dbClient.ListIncompleteQueueJobs(ctx)
	if err != nil {
		return fmt.Errorf("list queue jobs: %w", err)
	}
	awaiting, err := dbClient.ListUsersAwaitingOnboarding(ctx)
	if err != nil {
		return fmt.Errorf("list awaiting users: %w", err)
	}

	initialized := 0
	for _, bot := range bots {
		if bot.Initialized() {
			initialized++
		}
	}

	completed, ignored, pending := 0, 0, 0
	for _, imp := range imports {
		switch {
		case imp.Ignore:
			ignored++
		case imp.CompletedAt != nil:
			completed++
		default:
			pending++
		}
	}

	fmt.Printf("DAO bots:  %d total, %d initialized, %d bootstrapping\n",
		len(bots), initialized, len(bots)-initialized)
	fmt.Printf("Imports:   %d total, %d completed, %d ignored, %d pending\n",
		len(imports), completed, ignored, pending)
	fmt.Printf("Users:     %d awaiting onboarding\n", len(awaiting))
	fmt.Printf("Jobs:      %d incomplete\n", len(jobs))
	return nil
}
