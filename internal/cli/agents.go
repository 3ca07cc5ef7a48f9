package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents [agent-id]",
	Short: "List or inspect DAO bots",
	Long: `List all DAO bots or inspect a specific bot by ID.

Examples:
  goshctl agents           # List all bots
  goshctl agents abc123    # Show details for bot abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showAgent(ctx, args[0])
	}
	return listAgents(ctx)
}

func listAgents(ctx context.Context) error {
	bots, err := dbClient.ListDaoBots(ctx)
	if err != nil {
		return fmt.Errorf("list dao bots: %w", err)
	}

	if len(bots) == 0 {
		fmt.Println("No DAO bots found")
		return nil
	}

	fmt.Printf("%-38s %-24s %-14s %s\n", "ID", "DAO", "STATE", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------------")

	for _, bot := range bots {
		state := "bootstrapping"
		if bot.Initialized() {
			state = "initialized"
		}
		fmt.Printf("%-38s %-24s %-14s %s\n",
			models.MustRecordIDString(bot.ID), bot.DaoName, state,
			bot.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func showAgent(ctx context.Context, id string) error {
	bot, err := dbClient.GetDaoBot(ctx, id)
	if err != nil {
		return fmt.Errorf("get dao bot: %w", err)
	}
	if bot == nil {
		return fmt.Errorf("dao bot not found: %s", id)
	}

	fmt.Printf("DAO bot: %s\n", models.MustRecordIDString(bot.ID))
	fmt.Printf("  Name: %s\n", bot.Name)
	fmt.Printf("  DAO: %s\n", bot.DaoName)
	fmt.Printf("  Pubkey: %s\n", bot.Pubkey)
	if bot.ProfileAddr != nil {
		fmt.Printf("  Profile: %s\n", *bot.ProfileAddr)
	}
	fmt.Printf("  Created: %s\n", bot.CreatedAt.Format(time.RFC3339))
	if bot.InitializedAt != nil {
		fmt.Printf("  Initialized: %s\n", bot.InitializedAt.Format(time.RFC3339))
	} else {
		fmt.Println("  Initialized: no")
	}

	imports, err := dbClient.ListPendingImportsForBot(ctx, models.MustRecordIDString(bot.ID))
	if err != nil {
		return fmt.Errorf("list pending imports: %w", err)
	}
	if len(imports) > 0 {
		fmt.Printf("\nPending imports (%d):\n", len(imports))
		for _, imp := range imports {
			fmt.Printf("  - %s  (%s)\n", imp.Target, imp.SourceURL)
		}
	}
	return nil
}
