// ============================================================================
// Run Report Writer
// ============================================================================
//
// Package: internal/report
// File: report.go
// Purpose: Persists the summary of a finished campaign run as a JSON document
//
// Atomic write:
//   1. marshal the report (indented, readable by hand)
//   2. write <name>.json.tmp
//   3. rename over <name>.json
//   A crash between 2 and 3 leaves the previous file intact.
//
// Layout:
//   <dir>/<campaign-id>-<run-id>.json
//
// Schema:
//   schema_ver is 1. Load rejects anything else with ErrIncompatibleVersion.
//
// ============================================================================

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
)

// SchemaVersion is the current report format version
const SchemaVersion = 1

var (
	ErrCorruptedReport     = errors.New("report file is corrupted")
	ErrIncompatibleVersion = errors.New("report schema version is incompatible")
	ErrReportNotFound      = errors.New("report file not found")
)

// RunReport is the persisted summary of one campaign run
type RunReport struct {
	SchemaVer int                      `json:"schema_ver"`
	Status    types.Status             `json:"status"`
	Config    types.HumanizationConfig `json:"config"`
	Samples   []types.DelaySample      `json:"samples"`
	WrittenAt time.Time                `json:"written_at"`
}

// Writer stores run reports under a directory
type Writer struct {
	dir string
	mu  sync.Mutex
}

// NewWriter creates a Writer rooted at dir. The directory is created on first Save.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the report directory
func (w *Writer) Dir() string {
	return w.dir
}

// PathFor returns the file a report for the given run is stored in
func (w *Writer) PathFor(campaignID types.CampaignID, runID types.RunID) string {
	name := fmt.Sprintf("%s-%s.json", sanitize(string(campaignID)), sanitize(string(runID)))
	return filepath.Join(w.dir, name)
}

// Save writes r atomically
func (w *Writer) Save(r RunReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	r.SchemaVer = SchemaVersion
	if r.WrittenAt.IsZero() {
		r.WrittenAt = time.Now()
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	path := w.PathFor(r.Status.CampaignID, r.Status.RunID)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// List returns the report files in the directory, sorted by name
func (w *Writer) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return matches, nil
}

// Load reads a report written by Save
func Load(path string) (RunReport, error) {
	var r RunReport

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, fmt.Errorf("%w: %s", ErrReportNotFound, path)
		}
		return r, fmt.Errorf("failed to read report: %w", err)
	}

	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrCorruptedReport, err)
	}

	if r.SchemaVer != SchemaVersion {
		return r, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, r.SchemaVer, SchemaVersion)
	}
	return r, nil
}

// sanitize keeps ids usable as file names
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
