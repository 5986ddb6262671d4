package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List unassigned orphan sessions",
	Long:  `Lists sessions that began without a derivable tracker issue key, awaiting manual assignment.`,
	RunE:  runOrphans,
}

func init() {
	rootCmd.AddCommand(orphansCmd)
}

func runOrphans(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	orphans, err := st.ListUnassignedOrphans(ctx)
	if err != nil {
		return fmt.Errorf("list orphans: %w", err)
	}
	if len(orphans) == 0 {
		fmt.Println("no unassigned orphan sessions")
		return nil
	}
	for _, o := range orphans {
		fmt.Printf("#%d  branch=%s  %d minute(s), %d activit(y/ies)  created %s\n",
			o.ID, o.BranchName, o.TotalMinutes, o.ActivitiesCount, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
