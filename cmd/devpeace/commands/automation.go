package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mateuslacerda/devpeace/internal/config"
	"github.com/mateuslacerda/devpeace/internal/rules"
	"github.com/spf13/cobra"
)

var automationCmd = &cobra.Command{
	Use:   "automation",
	Short: "Inspect and edit status-automation rules",
}

var automationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current status-automation document",
	Args:  cobra.NoArgs,
	RunE:  runAutomationShow,
}

var automationEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable status automation",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return setAutomationEnabled(true) },
}

var automationDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable status automation",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return setAutomationEnabled(false) },
}

var automationResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset status-automation rules to the built-in defaults",
	Args:  cobra.NoArgs,
	RunE:  runAutomationReset,
}

var automationAutoRevertCmd = &cobra.Command{
	Use:   "auto-revert [on|off]",
	Short: "Show or set whether ending a session reverts the issue to its original status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAutomationAutoRevert,
}

var (
	automationConfigureEvent string
	automationConfigureFrom  []string
	automationConfigureTo    string
)

var automationConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Add or replace the rule for one event",
	Long: `Replaces the rule list for --event with a single rule transitioning
from any of --from to --to, validating the target status against the
live tracker before saving.`,
	Args: cobra.NoArgs,
	RunE: runAutomationConfigure,
}

func init() {
	automationConfigureCmd.Flags().StringVar(&automationConfigureEvent, "event", "", "event name (on_work_start, on_first_commit, on_work_complete)")
	automationConfigureCmd.Flags().StringSliceVar(&automationConfigureFrom, "from", nil, "source status name(s) that trigger the rule")
	automationConfigureCmd.Flags().StringVar(&automationConfigureTo, "to", "", "target status name")
	automationConfigureCmd.MarkFlagRequired("event")
	automationConfigureCmd.MarkFlagRequired("from")
	automationConfigureCmd.MarkFlagRequired("to")

	automationCmd.AddCommand(automationShowCmd, automationEnableCmd, automationDisableCmd,
		automationResetCmd, automationConfigureCmd, automationAutoRevertCmd)
	rootCmd.AddCommand(automationCmd)
}

func runAutomationShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg.StatusAutomation, "", "  ")
	if err != nil {
		return fmt.Errorf("render status automation: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func setAutomationEnabled(enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.StatusAutomation.Enabled = enabled
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("status automation %s\n", state)
	return nil
}

func runAutomationReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.StatusAutomation = rules.DefaultRuleSet()
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println("status automation reset to built-in defaults")
	return nil
}

func runAutomationAutoRevert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Printf("auto-revert is %v\n", cfg.StatusAutomation.AutoRevertOnSessionEnd)
		return nil
	}
	switch args[0] {
	case "on":
		cfg.StatusAutomation.AutoRevertOnSessionEnd = true
	case "off":
		cfg.StatusAutomation.AutoRevertOnSessionEnd = false
	default:
		return fmt.Errorf("expected \"on\" or \"off\", got %q", args[0])
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("auto-revert set to %v\n", cfg.StatusAutomation.AutoRevertOnSessionEnd)
	return nil
}

func runAutomationConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.StatusAutomation.Events == nil {
		cfg.StatusAutomation.Events = make(map[string][]rules.Rule)
	}
	cfg.StatusAutomation.Events[automationConfigureEvent] = []rules.Rule{
		{From: rules.Any(automationConfigureFrom), To: automationConfigureTo},
	}

	trk := newTracker(cfg)
	ctx := context.Background()
	checkTrackerConnection(ctx, trk)
	result := rules.ValidateRule(ctx, cfg.StatusAutomation, trk)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("configured %s: %v -> %s\n", automationConfigureEvent, automationConfigureFrom, automationConfigureTo)
	return nil
}
