// Package storage implements the append-only audit store: every assessment
// and intervention decision, keyed by subject and revision, on bbolt with an
// in-memory subject index. No update or delete operations are exposed; the
// store is the compliance record.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/veldt-labs/vigil/baseline"
	"github.com/veldt-labs/vigil/types"
)

// Bucket names in bbolt
var (
	bucketAssessments   = []byte("assessments")
	bucketInterventions = []byte("interventions")
	bucketBaselines     = []byte("baselines")
	bucketMeta          = []byte("meta")
)

var keyCurrentRevision = []byte("current_revision")

// AuditStore is the append-only record of assessments and interventions
type AuditStore struct {
	mu sync.RWMutex

	// In-memory index for fast per-subject lookups
	index *btree.BTreeG[*SubjectState]

	db *bbolt.DB

	currentRev int64

	dir string
}

// SubjectState tracks a monitored subject in the index
type SubjectState struct {
	SubjectID    string
	FirstSeenRev int64
	LastSeenRev  int64
	Assessments  int64
	LastSeenAt   time.Time
}

// Open creates or opens an audit store in the given directory
func Open(dir string) (*AuditStore, error) {
	dbPath := filepath.Join(dir, "vigil.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketAssessments, bucketInterventions, bucketBaselines, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &AuditStore{
		index: btree.NewG[*SubjectState](32, func(a, b *SubjectState) bool {
			return a.SubjectID < b.SubjectID
		}),
		db:  db,
		dir: dir,
	}

	if err := store.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the store
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Append records an assessment and its intervention atomically under one
// revision. Append-only: existing records are never touched.
func (s *AuditStore) Append(assessment *types.Assessment, intervention *types.InterventionRecord) (int64, error) {
	if err := assessment.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to audit invalid assessment: %w", err)
	}
	if intervention != nil {
		if err := intervention.Validate(); err != nil {
			return 0, fmt.Errorf("refusing to audit invalid intervention: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	err := s.db.Update(func(tx *bbolt.Tx) error {
		key := makeAuditKey(rev, assessment.SubjectID)

		value, err := json.Marshal(assessment)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAssessments).Put(key, value); err != nil {
			return err
		}

		if intervention != nil {
			value, err = json.Marshal(intervention)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketInterventions).Put(key, value); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, int64ToBytes(rev))
	})
	if err != nil {
		s.currentRev--
		return 0, err
	}

	s.updateIndex(assessment.SubjectID, rev, assessment.Timestamp)

	return rev, nil
}

// History returns the subject's assessments within the window, oldest first.
// A zero window returns the full history.
func (s *AuditStore) History(subjectID string, window time.Duration) ([]types.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	var out []types.Assessment
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAssessments).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			_, id := parseAuditKey(k)
			if id != subjectID {
				continue
			}
			var a types.Assessment
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("corrupt assessment record at %s: %w", k, err)
			}
			if !cutoff.IsZero() && a.Timestamp.Before(cutoff) {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Interventions returns the subject's intervention records within the
// window, oldest first
func (s *AuditStore) Interventions(subjectID string, window time.Duration) ([]types.InterventionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	var out []types.InterventionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketInterventions).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			_, id := parseAuditKey(k)
			if id != subjectID {
				continue
			}
			var r types.InterventionRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt intervention record at %s: %w", k, err)
			}
			if !cutoff.IsZero() && r.DecidedAt.Before(cutoff) {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// GetSubjectState returns the index entry for a subject
func (s *AuditStore) GetSubjectState(subjectID string) (*SubjectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, found := s.index.Get(&SubjectState{SubjectID: subjectID})
	if !found {
		return nil, fmt.Errorf("subject %s not found", subjectID)
	}
	copied := *state
	return &copied, nil
}

// Subjects lists all subjects the store has seen, in ID order
func (s *AuditStore) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	s.index.Ascend(func(state *SubjectState) bool {
		out = append(out, state.SubjectID)
		return true
	})
	return out
}

// CurrentRevision returns the current revision number
func (s *AuditStore) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// SaveBaseline persists a subject's baseline. Baselines are the one mutable
// record here: they are working state, not audit history.
func (s *AuditStore) SaveBaseline(b *baseline.Baseline) error {
	value, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBaselines).Put([]byte(b.SubjectID), value)
	})
}

// LoadBaseline returns a subject's stored baseline, or baseline.ErrNotFound
func (s *AuditStore) LoadBaseline(subjectID string) (*baseline.Baseline, error) {
	var b *baseline.Baseline
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBaselines).Get([]byte(subjectID))
		if data == nil {
			return baseline.ErrNotFound
		}
		b = &baseline.Baseline{}
		return json.Unmarshal(data, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Helper functions

func (s *AuditStore) updateIndex(subjectID string, rev int64, at time.Time) {
	state, found := s.index.Get(&SubjectState{SubjectID: subjectID})
	if !found {
		state = &SubjectState{
			SubjectID:    subjectID,
			FirstSeenRev: rev,
		}
	}
	state.LastSeenRev = rev
	state.Assessments++
	state.LastSeenAt = at
	s.index.ReplaceOrInsert(state)
}

func (s *AuditStore) loadRevision() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentRevision)
		if data != nil {
			rev, err := bytesToInt64(data)
			if err != nil {
				return fmt.Errorf("corrupt revision record: %w", err)
			}
			s.currentRev = rev
		}
		return nil
	})
}

// rebuildIndex reloads the subject index from disk on open
func (s *AuditStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAssessments).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rev, id := parseAuditKey(k)
			var a types.Assessment
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("corrupt assessment record at %s: %w", k, err)
			}
			s.updateIndex(id, rev, a.Timestamp)
		}
		return nil
	})
}

func makeAuditKey(rev int64, subjectID string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", rev, subjectID))
}

func parseAuditKey(key []byte) (int64, string) {
	parts := strings.SplitN(string(key), ":", 2)
	if len(parts) != 2 {
		return 0, ""
	}
	rev, _ := strconv.ParseInt(parts[0], 10, 64)
	return rev, parts[1]
}

func int64ToBytes(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func bytesToInt64(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}
