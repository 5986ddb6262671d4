package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mateuslacerda/devpeace/internal/gitinspect"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a git working tree for monitoring",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	root := gitinspect.Root(path)
	if root == "" || !gitinspect.IsRepo(root) {
		return fmt.Errorf("%s is not inside a git working tree", path)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if existing, _ := st.GetRepositoryByPath(ctx, root); existing != nil {
		fmt.Printf("%s is already registered\n", root)
		return nil
	}

	name := filepath.Base(root)
	if _, err := st.AddRepository(ctx, root, name); err != nil {
		return fmt.Errorf("add repository: %w", err)
	}

	fmt.Printf("Registered %s (%s)\n", root, name)
	return nil
}
