package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mateuslacerda/devpeace/internal/session"
	"github.com/mateuslacerda/devpeace/internal/supervisor"
	"github.com/mateuslacerda/devpeace/internal/watch"
	"github.com/spf13/cobra"
)

var daemonLogLevel string

const refreshInterval = 30 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the watcher and session manager in the foreground",
	Long: `Starts watching every currently-active repository and processing
the signals it sees into sessions, worklogs, and status transitions.
Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "level tag prefixed to log lines: debug, info, warn, or error (does not filter output)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configureLogLevel(daemonLogLevel)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	trk := newTracker(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checkTrackerConnection(ctx, trk)

	engine := newEngine(cfg, trk)
	sessCfg := session.DefaultConfig()
	sessCfg.AutoWorklog = cfg.AutoWorklog
	sessCfg.MinSessionMinutes = cfg.MinSessionMinutes
	sessCfg.CommitCommentThreshold = cfg.CommitCommentThreshold
	sessCfg.WorklogDescriptionTemplate = cfg.WorklogDescriptionTemplate

	watchOpts := watch.Options{
		Recursive:      cfg.Monitoring.Recursive,
		IgnorePatterns: cfg.Monitoring.IgnorePatterns,
	}

	sup := supervisor.New(st, trk, engine, sessCfg, watchOpts)
	if err := sup.Start(ctx, nil); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	fmt.Println("devpeace daemon running; press Ctrl+C to stop")
	for {
		select {
		case <-sigChan:
			fmt.Println("\nshutting down...")
			return sup.Stop(ctx)
		case <-ticker.C:
			if err := sup.Refresh(ctx); err != nil {
				log.Printf("daemon: refresh failed: %v", err)
			}
		}
	}
}

func configureLogLevel(level string) {
	switch level {
	case "debug", "info", "warn", "error":
		log.SetPrefix(fmt.Sprintf("[%s] ", level))
	default:
		log.Printf("unrecognized --log-level %q, using info", level)
	}
}
