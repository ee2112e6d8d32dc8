package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "vigil",
		Short: "Risk and safety assessment engine",
		Long: `Vigil - Risk and Safety Assessment Engine

Vigil scores monitored subjects across independent risk dimensions,
aggregates the scores into an overall risk level, tracks drift from each
subject's learned baseline, and decides tiered interventions when
thresholds are crossed.

Every assessment and decision lands in an append-only audit store; the
engine emits intervention decisions for external collaborators to execute
and never restricts or shuts anything down itself.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Vigil {{.Version}} - Risk and Safety Assessment Engine
`)
}
