package scheduler

import (
	"sync"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/internal/humanize"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
)

// cursor is the per-run dispatch state. Only the run's worker writes to it;
// status queries take the read lock.
type cursor struct {
	mu         sync.RWMutex
	queue      []types.Contact
	position   int
	samples    []types.DelaySample
	processed  int
	state      types.RunState
	startedAt  time.Time
	finishedAt *time.Time
}

func newCursor(contacts []types.Contact, startedAt time.Time) *cursor {
	queue := make([]types.Contact, len(contacts))
	copy(queue, contacts)
	return &cursor{
		queue:     queue,
		state:     types.StateIdle,
		startedAt: startedAt,
	}
}

// reorder replaces the queue once, before the first contact is taken
func (c *cursor) reorder(queue []types.Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.position == 0 {
		c.queue = queue
	}
}

// head returns the next contact without consuming it
func (c *cursor) head() (types.Contact, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.position >= len(c.queue) {
		return types.Contact{}, c.position, false
	}
	return c.queue[c.position], c.position, true
}

// advance consumes the head contact after it was handed to the sender
func (c *cursor) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position++
	c.processed++
}

func (c *cursor) recordSample(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, types.DelaySample{DurationMs: d.Milliseconds()})
}

func (c *cursor) setState(s types.RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.state = s
	}
}

func (c *cursor) currentState() types.RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// finish moves the cursor into a terminal state; it returns false if it already was
func (c *cursor) finish(s types.RunState, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return false
	}
	c.state = s
	c.finishedAt = &at
	return true
}

func (c *cursor) sampleCopy() []types.DelaySample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.DelaySample, len(c.samples))
	copy(out, c.samples)
	return out
}

// snapshot builds the read-only status. Before any delay was sampled the ETA
// uses the midpoint of the configured bounds.
func (c *cursor) snapshot(r *run, processingSeconds float64) types.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := humanize.GetDelayStatistics(humanize.SampleDurations(c.samples))
	avgDelay := stats.Mean / 1000
	if stats.Count == 0 {
		avgDelay = float64(r.cfg.DelayMinSeconds+r.cfg.DelayMaxSeconds) / 2
	}
	remaining := len(c.queue) - c.position

	st := types.Status{
		CampaignID:                r.campaignID,
		RunID:                     r.id,
		State:                     c.state,
		ProcessedCount:            c.processed,
		RemainingCount:            remaining,
		Stats:                     stats,
		EstimatedRemainingSeconds: humanize.EstimateRemainingTime(remaining, avgDelay, processingSeconds),
		StartedAt:                 c.startedAt,
	}
	if c.finishedAt != nil {
		at := *c.finishedAt
		st.FinishedAt = &at
	}
	return st
}
