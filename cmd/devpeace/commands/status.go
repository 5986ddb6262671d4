package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active sessions at a glance",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	sessions, err := st.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no active sessions")
		return nil
	}
	for _, sess := range sessions {
		repo, err := st.GetRepositoryByID(ctx, sess.RepositoryID)
		if err != nil {
			return fmt.Errorf("look up repository %d: %w", sess.RepositoryID, err)
		}
		issue := "(no issue)"
		if sess.JiraIssue != nil {
			issue = *sess.JiraIssue
		}
		path := "?"
		if repo != nil {
			path = repo.Path
		}
		fmt.Printf("%s  branch=%s  issue=%s  started %s\n", path, sess.BranchName, issue, humanize.Time(sess.StartTime))
	}
	return nil
}
