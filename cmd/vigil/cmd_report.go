package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldt-labs/vigil/config"
)

var (
	reportConfigPath string
	reportWindow     time.Duration
	reportJSON       bool
)

// reportCmd prints a subject's assessment history and interventions
var reportCmd = &cobra.Command{
	Use:   "report [subject]",
	Short: "Show assessment history and interventions",
	Long: `Show what the audit log holds for a subject: every assessment in
the window with its overall score, tier decisions, and intervention
actions. Without a subject, lists all known subjects.`,
	Example: `  vigil report                       # List known subjects
  vigil report agent-7               # Last 24h for agent-7
  vigil report agent-7 --window 72h  # Wider window
  vigil report agent-7 --json        # Machine-readable`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportConfigPath, "config", "c", "vigil.yaml", "Configuration file")
	reportCmd.Flags().DurationVarP(&reportWindow, "window", "w", 24*time.Hour, "History window")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(reportConfigPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 0 {
		subjects := store.Subjects()
		if reportJSON {
			out, _ := json.MarshalIndent(subjects, "", "  ")
			fmt.Println(string(out))
			return nil
		}
		if len(subjects) == 0 {
			fmt.Println("No subjects recorded yet.")
			return nil
		}
		fmt.Printf("📋 %d subjects:\n", len(subjects))
		for _, id := range subjects {
			fmt.Printf("   %s\n", id)
		}
		return nil
	}

	subjectID := args[0]
	assessments, err := store.History(subjectID, reportWindow)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	interventions, err := store.Interventions(subjectID, reportWindow)
	if err != nil {
		return fmt.Errorf("failed to read interventions: %w", err)
	}

	if reportJSON {
		out, err := json.MarshalIndent(map[string]any{
			"subject_id":    subjectID,
			"window":        reportWindow.String(),
			"assessments":   assessments,
			"interventions": interventions,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("📊 %s: %d assessments in the last %s\n\n", subjectID, len(assessments), reportWindow)
	for _, a := range assessments {
		flag := ""
		if a.HasCascade() {
			flag = "  ⚠️ cascade"
		}
		if a.Degraded {
			flag += "  degraded"
		}
		fmt.Printf("   %s  overall %.3f%s\n", a.Timestamp.Format(time.RFC3339), a.Overall, flag)
	}

	if len(interventions) > 0 {
		fmt.Printf("\n🛡️  %d interventions:\n", len(interventions))
		for _, rec := range interventions {
			fmt.Printf("   %s  %-9s %v\n", rec.DecidedAt.Format(time.RFC3339), rec.Tier, rec.Actions)
		}
	}
	return nil
}
