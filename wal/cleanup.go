package wal

import (
	"fmt"
	"os"
	"time"
)

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// Cleanup removes WAL files older than the retention period
func Cleanup(dir string, config Config) (CleanupStats, error) {
	stats := CleanupStats{}

	config.applyDefaults()

	files, err := listWALFiles(dir, config.FilePrefix)
	if err != nil {
		return stats, fmt.Errorf("failed to list WAL files: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(file); err != nil {
			return stats, fmt.Errorf("failed to remove %s: %w", file, err)
		}
		stats.FilesRemoved++
		stats.BytesFreed += info.Size()
	}

	return stats, nil
}
