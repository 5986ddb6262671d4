package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mateuslacerda/devpeace/internal/store"
	"github.com/spf13/cobra"
)

var (
	startPaths []string
	stopPaths  []string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Mark repositories active so the daemon watches them",
	Long: `Marks the given repositories active. With no --paths flag every
already-registered repository is activated. The daemon (run separately
via "devpeace daemon") picks up newly active repositories on its next
refresh; it does not need to be restarted.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Mark repositories inactive",
	Long: `Marks the given repositories inactive. With no --paths flag every
active repository is deactivated. A repository already being watched by
a running daemon is not unwatched until the daemon restarts.`,
	RunE: runStop,
}

func init() {
	startCmd.Flags().StringSliceVar(&startPaths, "paths", nil, "repository paths to activate (default: all registered)")
	rootCmd.AddCommand(startCmd)

	stopCmd.Flags().StringSliceVar(&stopPaths, "paths", nil, "repository paths to deactivate (default: all active)")
	rootCmd.AddCommand(stopCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return setActive(startPaths, true)
}

func runStop(cmd *cobra.Command, args []string) error {
	return setActive(stopPaths, false)
}

func setActive(paths []string, active bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	var targets []store.Repository
	if len(paths) == 0 {
		all, err := st.ListRepositories(ctx)
		if err != nil {
			return fmt.Errorf("list repositories: %w", err)
		}
		for _, r := range all {
			if r.IsActive != active {
				targets = append(targets, r)
			}
		}
	} else {
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("resolve path %s: %w", p, err)
			}
			repo, err := st.GetRepositoryByPath(ctx, abs)
			if err != nil {
				return fmt.Errorf("look up %s: %w", abs, err)
			}
			if repo == nil {
				fmt.Printf("warning: %s is not registered, skipping (use \"devpeace add\" first)\n", abs)
				continue
			}
			if repo.IsActive != active {
				targets = append(targets, *repo)
			}
		}
	}

	for _, r := range targets {
		if _, err := st.ToggleRepositoryActive(ctx, r.ID); err != nil {
			return fmt.Errorf("toggle %s: %w", r.Path, err)
		}
		verb := "Activated"
		if !active {
			verb = "Deactivated"
		}
		fmt.Printf("%s %s\n", verb, r.Path)
	}
	if len(targets) == 0 {
		fmt.Println("nothing to do")
	}
	return nil
}
