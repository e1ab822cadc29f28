// Package journal persists convergence run records, so past runs can be
// inspected after the fact and repeated failures are visible across
// invocations.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Buckets in the journal database.
const (
	bucketRuns   = "runs"   // run records keyed by run token
	bucketLatest = "latest" // single pointer to the most recent run token
)

const latestKey = "run"

// RunRecord is one persisted convergence run.
type RunRecord struct {
	Token      string            `json:"token"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Succeeded  bool              `json:"succeeded"`
	Results    []AssertionResult `json:"results"`
}

// AssertionResult is one assertion's outcome within a run.
type AssertionResult struct {
	ID       string        `json:"id"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// NewToken mints a run token. Tokens are time-ordered so bucket iteration
// yields runs in chronological order.
func NewToken() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Journal is a bbolt-backed run log.
type Journal struct {
	db *bolt.DB
	mu sync.RWMutex
}

// Open creates or opens the journal database at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{bucketRuns, bucketLatest} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record persists one run and marks it as the latest.
func (j *Journal) Record(rec RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal run record: %w", err)
		}
		if err := tx.Bucket([]byte(bucketRuns)).Put([]byte(rec.Token), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketLatest)).Put([]byte(latestKey), []byte(rec.Token))
	})
}

// Get returns one run by token.
func (j *Journal) Get(token string) (RunRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var rec RunRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketRuns)).Get([]byte(token))
		if data == nil {
			return fmt.Errorf("run not found: %s", token)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// Latest returns the most recent run, or false when the journal is empty.
func (j *Journal) Latest() (RunRecord, bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var rec RunRecord
	found := false
	err := j.db.View(func(tx *bolt.Tx) error {
		token := tx.Bucket([]byte(bucketLatest)).Get([]byte(latestKey))
		if token == nil {
			return nil
		}
		data := tx.Bucket([]byte(bucketRuns)).Get(token)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	return rec, found, err
}

// List returns up to limit runs, newest first. A non-positive limit returns
// everything.
func (j *Journal) List(limit int) ([]RunRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var records []RunRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", string(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
