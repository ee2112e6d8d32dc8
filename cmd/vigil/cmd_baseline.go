package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldt-labs/vigil/baseline"
	"github.com/veldt-labs/vigil/config"
)

var (
	baselineConfigPath string
	baselineRebuild    bool
	baselineWindow     time.Duration
	baselineJSON       bool
)

// baselineCmd shows or rebuilds a subject's behavioral baseline
var baselineCmd = &cobra.Command{
	Use:   "baseline <subject>",
	Short: "Show or rebuild a subject's baseline",
	Long: `Show the running per-dimension statistics a subject has accumulated.
With --rebuild, recompute the baseline from the audit log instead of
the stored running statistics (useful after changing dimension sets).`,
	Example: `  vigil baseline agent-7
  vigil baseline agent-7 --rebuild --window 168h`,
	Args: cobra.ExactArgs(1),
	RunE: runBaseline,
}

func init() {
	rootCmd.AddCommand(baselineCmd)

	baselineCmd.Flags().StringVarP(&baselineConfigPath, "config", "c", "vigil.yaml", "Configuration file")
	baselineCmd.Flags().BoolVar(&baselineRebuild, "rebuild", false, "Recompute baseline from audit history")
	baselineCmd.Flags().DurationVarP(&baselineWindow, "window", "w", 7*24*time.Hour, "History window for --rebuild")
	baselineCmd.Flags().BoolVar(&baselineJSON, "json", false, "Print JSON")
}

func runBaseline(cmd *cobra.Command, args []string) error {
	subjectID := args[0]

	cfg, err := config.Load(baselineConfigPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tracker := baseline.NewTracker(store)

	var b *baseline.Baseline
	if baselineRebuild {
		b, err = tracker.Rebuild(subjectID, store, baselineWindow)
		if err != nil {
			return fmt.Errorf("failed to rebuild baseline: %w", err)
		}
		fmt.Printf("♻️  Rebuilt baseline for %s from the last %s\n\n", subjectID, baselineWindow)
	} else {
		b, err = tracker.Get(subjectID)
		if errors.Is(err, baseline.ErrNotFound) {
			fmt.Printf("No baseline recorded for %s yet.\n", subjectID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load baseline: %w", err)
		}
	}

	if baselineJSON {
		out, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("📐 %s: %d samples, updated %s\n", b.SubjectID, b.Samples, b.UpdatedAt.Format(time.RFC3339))
	if !b.Mature() {
		fmt.Println("   (not yet mature: drift detection needs at least 2 samples)")
	}
	fmt.Println()

	dims := make([]string, 0, len(b.Dimensions))
	for name := range b.Dimensions {
		dims = append(dims, name)
	}
	sort.Strings(dims)
	for _, name := range dims {
		stats := b.Dimensions[name]
		fmt.Printf("   %-16s mean %.3f  stddev %.3f  n=%d\n", name, stats.Mean, stats.StdDev(), stats.Count)
	}
	return nil
}
