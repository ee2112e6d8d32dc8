// Package wal journals the assessment cycle lifecycle to an append-only
// JSONL log, for crash recovery and external audit replay.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType defines the type of WAL entry
type EntryType string

const (
	EntryAssessed    EntryType = "assessed"
	EntryDecided     EntryType = "decided"
	EntryDispatched  EntryType = "dispatched"
	EntryCycleFailed EntryType = "cycle_failed"
)

// Entry represents a single WAL entry
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	Type      EntryType       `json:"type"`
	SubjectID string          `json:"subject_id,omitempty"`
	CycleID   string          `json:"cycle_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
}

// Config controls WAL file handling
type Config struct {
	FilePrefix    string
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns the standard WAL configuration
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "vigil",
		MaxFileSize:   64 << 20, // 64 MiB per file before rotation
		RetentionDays: 30,
	}
}

// applyDefaults fills unset fields without touching caller-set ones
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.FilePrefix == "" {
		c.FilePrefix = def.FilePrefix
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
}

// WAL provides write-ahead logging for audit and recovery
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	size     int64
	dir      string
	config   Config
}

// Open creates or opens a WAL in the specified directory
func Open(dir string, config Config) (*WAL, error) {
	config.applyDefaults()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	w := &WAL{
		dir:    dir,
		config: config,
	}

	// Recover the last sequence from existing files before opening a new one
	w.sequence = lastSequenceInDir(dir, config.FilePrefix)

	if err := w.openFile(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *WAL) openFile() error {
	filename := fmt.Sprintf("%s-%s.wal", w.config.FilePrefix, time.Now().Format("20060102-150405.000"))
	path := filepath.Join(w.dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 -- path built from configured dir
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriter(file)
	w.size = 0
	return nil
}

// Close flushes and closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the WAL
func (w *WAL) Append(entryType EntryType, subjectID, cycleID string, data interface{}) error {
	return w.append(entryType, subjectID, cycleID, data, nil)
}

// AppendError adds an entry carrying a failure
func (w *WAL) AppendError(entryType EntryType, subjectID, cycleID string, data interface{}, cause error) error {
	return w.append(entryType, subjectID, cycleID, data, cause)
}

func (w *WAL) append(entryType EntryType, subjectID, cycleID string, data interface{}, cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	w.sequence++
	entry := Entry{
		Timestamp: time.Now(),
		Sequence:  w.sequence,
		Type:      entryType,
		SubjectID: subjectID,
		CycleID:   cycleID,
		Data:      jsonData,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	return w.writeEntry(entry)
}

// writeEntry writes a single entry, rotating the file when it grows past
// the configured size
func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if w.config.MaxFileSize > 0 && w.size+int64(len(line))+1 > w.config.MaxFileSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush and sync immediately - the WAL is a durability record
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}

	w.size += int64(len(line)) + 1
	return nil
}

func (w *WAL) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotation: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close before rotation: %w", err)
	}
	return w.openFile()
}

// Sequence returns the last written sequence number
func (w *WAL) Sequence() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

// Reader provides WAL replay functionality
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a WAL reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from directory listing
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry from the WAL
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay replays WAL entries recorded after a specific time
func Replay(dir string, prefix string, since time.Time, handler func(*Entry) error) error {
	if prefix == "" {
		prefix = DefaultConfig().FilePrefix
	}
	files, err := listWALFiles(dir, prefix)
	if err != nil {
		return fmt.Errorf("failed to list WAL files: %w", err)
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}

	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func listWALFiles(dir, prefix string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, prefix+"-*.wal"))
}

// lastSequenceInDir scans existing files for the highest sequence number,
// skipping entries that fail to parse
func lastSequenceInDir(dir, prefix string) int64 {
	files, err := listWALFiles(dir, prefix)
	if err != nil {
		return 0
	}

	var maxSeq int64
	for _, file := range files {
		reader, err := NewReader(file)
		if err != nil {
			continue
		}
		for {
			entry, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			if entry.Sequence > maxSeq {
				maxSeq = entry.Sequence
			}
		}
		_ = reader.Close()
	}
	return maxSeq
}
