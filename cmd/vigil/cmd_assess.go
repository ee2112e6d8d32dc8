package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/orchestrator"
	"github.com/veldt-labs/vigil/types"
)

var (
	assessConfigPath   string
	assessProfile      string
	assessWindow       time.Duration
	assessObservations string
	assessCrisis       []string
	assessRuleFiles    []string
	assessJSON         bool
)

// assessCmd runs a single assessment cycle for one subject
var assessCmd = &cobra.Command{
	Use:   "assess <subject>",
	Short: "Run one assessment cycle for a subject",
	Long: `Run a single assessment cycle: score every configured dimension,
aggregate, check drift against the subject's baseline, decide an
intervention tier, and record the result in the audit log.

Observations are read from a JSON file; without one, the cycle assesses
an empty snapshot (useful for seeding a baseline).`,
	Example: `  vigil assess agent-7 --config vigil.yaml
  vigil assess agent-7 --observations obs.json
  vigil assess agent-7 --crisis operator_report --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)

	assessCmd.Flags().StringVarP(&assessConfigPath, "config", "c", "vigil.yaml", "Configuration file")
	assessCmd.Flags().StringVarP(&assessProfile, "profile", "p", "default", "Assessment profile")
	assessCmd.Flags().DurationVarP(&assessWindow, "window", "w", time.Hour, "Observation window")
	assessCmd.Flags().StringVarP(&assessObservations, "observations", "f", "", "JSON file of observations")
	assessCmd.Flags().StringSliceVar(&assessCrisis, "crisis", nil, "Crisis indicators to declare")
	assessCmd.Flags().StringSliceVar(&assessRuleFiles, "rule", nil, "Rego override rule files")
	assessCmd.Flags().BoolVar(&assessJSON, "json", false, "Print the full cycle result as JSON")
}

func runAssess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	subjectID := args[0]

	cfg, err := config.Load(assessConfigPath)
	if err != nil {
		return err
	}
	profile, ok := cfg.Profiles[assessProfile]
	if !ok {
		return fmt.Errorf("unknown profile %q", assessProfile)
	}

	orch, journal, cleanup, err := buildOrchestrator(ctx, cfg, assessRuleFiles)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = journal.Close() }()

	req := orchestrator.CycleRequest{
		SubjectID:        subjectID,
		Profile:          profile,
		Window:           assessWindow,
		CrisisIndicators: assessCrisis,
	}
	if assessObservations != "" {
		snapshot, err := loadSnapshot(assessObservations, subjectID, assessWindow)
		if err != nil {
			return err
		}
		req.Snapshot = snapshot
	}

	result, err := orch.RunCycle(ctx, req)
	if err != nil && result == nil {
		return err
	}

	if assessJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	printCycleResult(result)
	return nil
}

// loadSnapshot reads observations from a JSON file. The file may hold
// either a bare observation array or a full snapshot object.
func loadSnapshot(path, subjectID string, window time.Duration) (*types.Snapshot, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- observation path is operator input
	if err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}

	var observations []types.Observation
	if err := json.Unmarshal(data, &observations); err == nil {
		return &types.Snapshot{
			SubjectID:    subjectID,
			TakenAt:      time.Now(),
			Window:       window,
			Observations: observations,
		}, nil
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse observations: %w", err)
	}
	if snapshot.SubjectID == "" {
		snapshot.SubjectID = subjectID
	}
	if snapshot.TakenAt.IsZero() {
		snapshot.TakenAt = time.Now()
	}
	if snapshot.Window == 0 {
		snapshot.Window = window
	}
	return &snapshot, nil
}

func printCycleResult(result *orchestrator.CycleResult) {
	fmt.Printf("🔍 Cycle %s (%s)\n\n", result.CycleID, result.Duration.Round(time.Millisecond))

	if result.Assessment != nil {
		a := result.Assessment
		fmt.Printf("   Overall: %.3f", a.Overall)
		if a.Degraded {
			fmt.Printf(" (degraded)")
		}
		fmt.Println()
		for _, score := range a.Scores {
			marker := "•"
			if score.Failed {
				marker = "✗"
			}
			fmt.Printf("   %s %-16s %.3f  %s\n", marker, score.Dimension, score.Score, score.Band)
		}
		if a.HasCascade() {
			fmt.Printf("   ⚠️  Cascade across %v\n", a.Cascades[0].Dimensions)
		}
		if a.Drift != nil {
			if a.Drift.InsufficientHistory {
				fmt.Printf("   Drift: insufficient history (%d samples)\n", a.Drift.BaselineSamples)
			} else {
				fmt.Printf("   Drift: %.3f", a.Drift.OverallDrift)
				if len(a.Drift.Significant) > 0 {
					fmt.Printf("  significant: %v", a.Drift.Significant)
				}
				fmt.Println()
			}
		}
	}

	if result.Intervention != nil {
		i := result.Intervention
		fmt.Printf("\n   Tier: %s\n", i.Tier)
		fmt.Printf("   Actions: %v\n", i.Actions)
		for _, reason := range i.Reasons {
			fmt.Printf("   - %s\n", reason)
		}
	}

	if len(result.Errors) > 0 {
		fmt.Println()
		for _, msg := range result.Errors {
			fmt.Printf("   ⚠️  %s\n", msg)
		}
	}
}
