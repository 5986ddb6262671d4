package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listActiveOnly bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listActiveOnly, "active-only", false, "only list active repositories")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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

	for _, r := range repos {
		if listActiveOnly && !r.IsActive {
			continue
		}
		state := "inactive"
		if r.IsActive {
			state = "active"
		}
		last := "never"
		if r.LastActivity != nil {
			last = humanize.Time(*r.LastActivity)
		}
		fmt.Printf("%-8s %s  (last activity: %s)\n", state, r.Path, last)
	}
	return nil
}
