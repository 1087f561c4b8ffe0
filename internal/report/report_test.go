package report

// ============================================================================
// Run report tests
// Covers: atomic write and load, version checks, corrupted files
// ============================================================================

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(campaign types.CampaignID, run types.RunID) RunReport {
	finished := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	return RunReport{
		Status: types.Status{
			CampaignID:     campaign,
			RunID:          run,
			State:          types.StateCompleted,
			ProcessedCount: 3,
			Stats:          types.DelayStatistics{Count: 3, Min: 10000, Max: 20000, Mean: 15000, Median: 15000},
			StartedAt:      finished.Add(-time.Minute),
			FinishedAt:     &finished,
		},
		Config:  types.HumanizationConfig{DelayMinSeconds: 10, DelayMaxSeconds: 20},
		Samples: []types.DelaySample{{DurationMs: 10000}, {DurationMs: 15000}, {DurationMs: 20000}},
	}
}

func TestSaveAndLoad(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "reports"))

	r := sampleReport("spring-promo", "run-1")
	require.NoError(t, w.Save(r))

	path := w.PathFor("spring-promo", "run-1")
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, loaded.SchemaVer)
	assert.Equal(t, r.Status.CampaignID, loaded.Status.CampaignID)
	assert.Equal(t, r.Status.ProcessedCount, loaded.Status.ProcessedCount)
	assert.Equal(t, r.Samples, loaded.Samples)
	assert.False(t, loaded.WrittenAt.IsZero())
}

func TestSaveOverwrites(t *testing.T) {
	w := NewWriter(t.TempDir())

	r := sampleReport("c", "r")
	require.NoError(t, w.Save(r))
	r.Status.ProcessedCount = 99
	require.NoError(t, w.Save(r))

	loaded, err := Load(w.PathFor("c", "r"))
	require.NoError(t, err)
	assert.Equal(t, 99, loaded.Status.ProcessedCount)
}

func TestPathForSanitizes(t *testing.T) {
	w := NewWriter("/reports")
	assert.Equal(t, filepath.Join("/reports", "a_b_c-run.1.json"), w.PathFor("a/b c", "run.1"))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrReportNotFound)

	corrupted := filepath.Join(dir, "corrupted.json")
	require.NoError(t, os.WriteFile(corrupted, []byte("{not json"), 0o644))
	_, err = Load(corrupted)
	assert.ErrorIs(t, err, ErrCorruptedReport)

	future := filepath.Join(dir, "future.json")
	data, _ := json.Marshal(map[string]any{"schema_ver": 2})
	require.NoError(t, os.WriteFile(future, data, 0o644))
	_, err = Load(future)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestList(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.Save(sampleReport("b", "1")))
	require.NoError(t, w.Save(sampleReport("a", "1")))

	files, err := w.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a-1.json", filepath.Base(files[0]))
}

func TestConcurrentSave(t *testing.T) {
	w := NewWriter(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r := sampleReport("shared", "run")
			r.Status.ProcessedCount = n
			assert.NoError(t, w.Save(r))
		}(i)
	}
	wg.Wait()

	_, err := Load(w.PathFor("shared", "run"))
	assert.NoError(t, err)
}
