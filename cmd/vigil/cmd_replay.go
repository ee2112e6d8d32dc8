package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/wal"
)

var (
	replayConfigPath string
	replaySince      time.Duration
	replaySubject    string
	replayType       string
	replayJSON       bool
)

// replayCmd reads the journal back for audit and debugging
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the assessment journal",
	Long: `Replay journal entries in order: what was assessed, what was decided,
what was dispatched, and which cycles failed. Filter by subject, entry
type, and age.`,
	Example: `  vigil replay --since 1h
  vigil replay --since 24h --subject agent-7
  vigil replay --type cycle_failed`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "c", "vigil.yaml", "Configuration file")
	replayCmd.Flags().DurationVar(&replaySince, "since", 24*time.Hour, "Replay entries newer than this")
	replayCmd.Flags().StringVar(&replaySubject, "subject", "", "Only entries for this subject")
	replayCmd.Flags().StringVar(&replayType, "type", "", "Only entries of this type (assessed, decided, dispatched, cycle_failed)")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print raw entries as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(replayConfigPath)
	if err != nil {
		return err
	}

	since := time.Now().Add(-replaySince)
	var count int

	err = wal.Replay(cfg.WALPath, "", since, func(entry *wal.Entry) error {
		if replaySubject != "" && entry.SubjectID != replaySubject {
			return nil
		}
		if replayType != "" && string(entry.Type) != replayType {
			return nil
		}
		count++

		if replayJSON {
			out, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		marker := entryMarker(entry.Type)
		fmt.Printf("%s %s seq=%d %-12s subject=%s cycle=%s", marker,
			entry.Timestamp.Format(time.RFC3339), entry.Sequence, entry.Type,
			entry.SubjectID, entry.CycleID)
		if entry.Error != "" {
			fmt.Printf(" error=%q", entry.Error)
		}
		fmt.Println()
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	if !replayJSON {
		fmt.Printf("\n%d entries replayed from the last %s\n", count, replaySince)
	}
	return nil
}

func entryMarker(t wal.EntryType) string {
	switch t {
	case wal.EntryAssessed:
		return "🔍"
	case wal.EntryDecided:
		return "🛡️ "
	case wal.EntryDispatched:
		return "📤"
	case wal.EntryCycleFailed:
		return "❌"
	default:
		return "•"
	}
}
