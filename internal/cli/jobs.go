package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosh-sh/gosh-sub009/internal/models"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List incomplete queue jobs",
	Long: `List the persisted queue jobs that have not finished. These are the jobs
the daemon resumes after a restart.`,
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	jobs, err := dbClient.ListIncompleteQueueJobs(context.Background())
	if err != nil {
		return fmt.Errorf("list queue jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No incomplete jobs")
		return nil
	}

	fmt.Printf("%-10s %-20s %-10s %-9s %s\n", "ID", "QUEUE", "STATUS", "ATTEMPTS", "DEDUP KEY")
	fmt.Println("---------------------------------------------------------------------------")

	for _, job := range jobs {
		fmt.Printf("%-10s %-20s %-10s %-9d %s\n",
			models.MustRecordIDString(job.ID), job.Queue, job.Status, job.Attempts, job.DedupKey)
		if verbose && job.LastError != nil {
			fmt.Printf("    last error: %s\n", *job.LastError)
		}
	}
	return nil
}
