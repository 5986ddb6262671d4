// Package commands implements the devpeace CLI surface: repository
// registration, daemon lifecycle control, issue-tracker shortcuts, and
// status-automation configuration.
package commands

import (
	"context"
	"fmt"

	"github.com/mateuslacerda/devpeace/internal/config"
	"github.com/mateuslacerda/devpeace/internal/rules"
	"github.com/mateuslacerda/devpeace/internal/store"
	"github.com/mateuslacerda/devpeace/internal/tracker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "devpeace",
	Short: "Watch working trees and keep tracker issues in sync with your work",
	Long: `devpeace watches your git working trees, infers when you start and stop
working on an issue from branch names and commits, and drives worklog
posting and issue-status automation against your issue tracker.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default: "+store.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("DEVPEACE")
	viper.AutomaticEnv()
}

func openStore() (*store.Store, error) {
	path := viper.GetString("db")
	if path == "" {
		path = store.DefaultPath()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newTracker(cfg *config.Config) tracker.Tracker {
	return tracker.NewClientWithOptions(cfg.JiraURL, cfg.JiraUser, cfg.JiraToken, tracker.Options{StatsEnabled: verbose})
}

// checkTrackerConnection warns, but never fails, a command that can
// usefully run against a store-only view even when the tracker is
// unreachable.
func checkTrackerConnection(ctx context.Context, trk tracker.Tracker) {
	if !trk.Connect(ctx) {
		fmt.Println("warning: could not reach the issue tracker; tracker-dependent fields will be unavailable")
	}
}

func newEngine(cfg *config.Config, trk tracker.Tracker) *rules.Engine {
	return rules.New(cfg.StatusAutomation, trk)
}
