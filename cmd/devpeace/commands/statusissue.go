package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusIssueComment string

var statusIssueCmd = &cobra.Command{
	Use:   "status-issue <key> <status>",
	Short: "Manually transition a tracker issue to a target status",
	Args:  cobra.ExactArgs(2),
	RunE:  runStatusIssue,
}

func init() {
	statusIssueCmd.Flags().StringVar(&statusIssueComment, "comment", "", "also post this comment on the issue")
	rootCmd.AddCommand(statusIssueCmd)
}

func runStatusIssue(cmd *cobra.Command, args []string) error {
	key, target := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk := newTracker(cfg)
	ctx := context.Background()
	checkTrackerConnection(ctx, trk)

	if !trk.Transition(ctx, key, target) {
		return fmt.Errorf("could not transition %s to %q (not a reachable status, or the tracker rejected it)", key, target)
	}
	fmt.Printf("%s -> %s\n", key, target)

	if statusIssueComment != "" {
		if !trk.AddComment(ctx, key, statusIssueComment) {
			return fmt.Errorf("transitioned %s but failed to post the comment", key)
		}
		fmt.Println("comment posted")
	}
	return nil
}
