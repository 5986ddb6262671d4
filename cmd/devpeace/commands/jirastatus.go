package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var jiraStatusCmd = &cobra.Command{
	Use:   "jira-status",
	Short: "Inspect tracker projects, issues, and workflows",
}

var jiraStatusProjectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List tracker projects",
	Args:  cobra.NoArgs,
	RunE:  runJiraStatusProjects,
}

var jiraStatusListCmd = &cobra.Command{
	Use:   "list <key>",
	Short: "Show an issue's current status",
	Args:  cobra.ExactArgs(1),
	RunE:  runJiraStatusList,
}

var jiraStatusWorkflowCmd = &cobra.Command{
	Use:   "workflow <key>",
	Short: "Show an issue's available transitions and reachable statuses",
	Args:  cobra.ExactArgs(1),
	RunE:  runJiraStatusWorkflow,
}

var jiraStatusWorklogsCmd = &cobra.Command{
	Use:   "worklogs <key>",
	Short: "List the worklogs recorded against an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runJiraStatusWorklogs,
}

func init() {
	jiraStatusCmd.AddCommand(jiraStatusProjectsCmd, jiraStatusListCmd, jiraStatusWorkflowCmd, jiraStatusWorklogsCmd)
	rootCmd.AddCommand(jiraStatusCmd)
}

func runJiraStatusProjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk := newTracker(cfg)
	ctx := context.Background()
	checkTrackerConnection(ctx, trk)

	projects := trk.ListProjects(ctx)
	if len(projects) == 0 {
		fmt.Println("no projects found")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%s  %s\n", p.Key, p.Name)
	}
	return nil
}

func runJiraStatusList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk := newTracker(cfg)
	ctx := context.Background()
	checkTrackerConnection(ctx, trk)

	issue, ok := trk.GetIssue(ctx, args[0])
	if !ok {
		return fmt.Errorf("issue %s not found", args[0])
	}
	fmt.Printf("%s  %s  [%s]\n", issue.Key, issue.Summary, issue.Status)
	return nil
}

func runJiraStatusWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk := newTracker(cfg)
	ctx := context.Background()
	checkTrackerConnection(ctx, trk)

	wf, ok := trk.IssueWorkflow(ctx, args[0])
	if !ok {
		return fmt.Errorf("could not load workflow for %s", args[0])
	}
	fmt.Printf("current status: %s\n", wf.CurrentStatus)
	fmt.Println("available transitions:")
	for _, t := range wf.Transitions {
		fmt.Printf("  -> %s (%s)\n", t.ToStatus, t.Name)
	}
	fmt.Printf("all reachable statuses: %v\n", wf.AllStatuses)
	return nil
}

func runJiraStatusWorklogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk := newTracker(cfg)
	ctx := context.Background()
	checkTrackerConnection(ctx, trk)

	worklogs := trk.ListWorklogs(ctx, args[0])
	if len(worklogs) == 0 {
		fmt.Println("no worklogs found")
		return nil
	}
	for _, w := range worklogs {
		fmt.Printf("%s  %dm  %s  %s\n", w.ID, w.TimeSpentMinutes, w.Started.Format("2006-01-02 15:04"), w.Comment)
	}
	return nil
}
