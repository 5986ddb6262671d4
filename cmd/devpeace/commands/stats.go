package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate repository and session counters",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}
	var active int
	for _, r := range repos {
		if r.IsActive {
			active++
		}
	}
	sessions, err := st.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	orphans, err := st.ListUnassignedOrphans(ctx)
	if err != nil {
		return fmt.Errorf("list orphans: %w", err)
	}

	fmt.Printf("total repositories:  %d\n", len(repos))
	fmt.Printf("active repositories: %d\n", active)
	fmt.Printf("active sessions:     %d\n", len(sessions))
	fmt.Printf("orphan records:      %d\n", len(orphans))
	return nil
}
