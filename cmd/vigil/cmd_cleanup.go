package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/wal"
)

var (
	cleanupConfigPath string
	cleanupRetention  int
)

// cleanupCmd removes journal files past retention
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove journal files past retention",
	Example: `  vigil cleanup
  vigil cleanup --retention-days 7`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().StringVarP(&cleanupConfigPath, "config", "c", "vigil.yaml", "Configuration file")
	cleanupCmd.Flags().IntVar(&cleanupRetention, "retention-days", 0, "Retention in days (0 = journal default)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cleanupConfigPath)
	if err != nil {
		return err
	}

	walConfig := wal.DefaultConfig()
	if cleanupRetention > 0 {
		walConfig.RetentionDays = cleanupRetention
	}

	stats, err := wal.Cleanup(cfg.WALPath, walConfig)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Printf("🧹 Removed %d journal files (%d bytes)\n", stats.FilesRemoved, stats.BytesFreed)
	return nil
}
