package storage

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// RunRecord is one line of the run history.
type RunRecord struct {
	ID               string    `json:"id"`
	Org              string    `json:"org"`
	DryRun           bool      `json:"dry_run"`
	Scope            string    `json:"scope"`
	PlanHash         string    `json:"plan_hash"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Planned          int       `json:"planned"`
	Succeeded        int       `json:"succeeded"`
	Skipped          int       `json:"skipped"`
	Failed           int       `json:"failed"`
	AlreadySatisfied int       `json:"already_satisfied"`
	Deferred         int       `json:"deferred"`
	PrevHash         string    `json:"prev_hash"`
	Hash             string    `json:"hash"`
}

// CalculateHash returns the SHA256 of the record's fields and its predecessor's hash.
func (r *RunRecord) CalculateHash() string {
	h := sha256.New()
	for _, s := range []string{
		r.PrevHash,
		r.ID,
		r.Org,
		strconv.FormatBool(r.DryRun),
		r.Scope,
		r.PlanHash,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("%d/%d/%d/%d/%d/%d", r.Planned, r.Succeeded, r.Skipped, r.Failed, r.AlreadySatisfied, r.Deferred),
	} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RunHistory is an append-only JSON Lines log of runs. Each record carries
// the hash of the one before it, so edits to earlier lines are detectable.
type RunHistory struct {
	mu       sync.Mutex
	path     string
	lastHash string
	loaded   bool
}

// NewRunHistory opens the history at path. The file is created on first append.
func NewRunHistory(path string) *RunHistory {
	return &RunHistory{path: path}
}

// Path returns the history file location.
func (h *RunHistory) Path() string {
	return h.path
}

// Append chains rec to the last record and writes it.
func (h *RunHistory) Append(rec *RunRecord) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		records, err := h.load()
		if err != nil {
			return err
		}
		if len(records) > 0 {
			h.lastHash = records[len(records)-1].Hash
		}
		h.loaded = true
	}

	// G301: Use 0700 for directories
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	rec.PrevHash = h.lastHash
	rec.Hash = rec.CalculateHash()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	// #nosec G304 -- the history path is chosen by the operator
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close history file: %w", cerr)
		}
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}

	h.lastHash = rec.Hash
	return nil
}

// LoadAll returns every record, oldest first. A missing file is an empty history.
func (h *RunHistory) LoadAll() ([]*RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

// Last returns the newest record for org, or nil.
func (h *RunHistory) Last(org string) (*RunRecord, error) {
	records, err := h.LoadAll()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Org == org {
			return records[i], nil
		}
	}
	return nil, nil
}

// VerifyIntegrity checks the hash chain and returns one message per broken link.
func (h *RunHistory) VerifyIntegrity() ([]string, error) {
	records, err := h.LoadAll()
	if err != nil {
		return nil, err
	}

	var violations []string
	lastHash := ""
	for i, r := range records {
		if r.PrevHash != lastHash {
			violations = append(violations, fmt.Sprintf("record %d (%s): prev_hash mismatch", i+1, r.ID))
		}
		if r.Hash != r.CalculateHash() {
			violations = append(violations, fmt.Sprintf("record %d (%s): hash mismatch, record was modified", i+1, r.ID))
		}
		lastHash = r.Hash
	}
	return violations, nil
}

func (h *RunHistory) load() ([]*RunRecord, error) {
	// #nosec G304 -- the history path is chosen by the operator
	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var records []*RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history file: %w", err)
	}
	return records, nil
}
