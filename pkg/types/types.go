// Package types defines the core domain model shared by the dispatch scheduler
package types

import (
	"time"
)

// CampaignID identifies a bulk outbound campaign
type CampaignID string

// RunID identifies one run of a campaign; a restarted campaign gets a new RunID
type RunID string

// RunState is the lifecycle state of a campaign run
type RunState string

// Run states
const (
	StateIdle      RunState = "idle"      // cursor built, worker not started yet
	StateRunning   RunState = "running"   // worker is selecting or dispatching a contact
	StateWaiting   RunState = "waiting"   // worker is suspended on a closed window or a humanized delay
	StateCompleted RunState = "completed" // contact queue exhausted
	StateCancelled RunState = "cancelled" // stopped externally, no further sends
)

// Terminal reports whether no further transitions are possible from s
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Delay distributions
const (
	DistributionUniform = "uniform"
	DistributionNormal  = "normal"
)

// Contact is one recipient of a campaign
type Contact struct {
	ID        string            `json:"id"`
	Phone     string            `json:"phone,omitempty"`
	Name      string            `json:"name,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// SendingWindow is the time-of-day and weekday range a campaign may dispatch in.
// StartTime and EndTime use "HH:mm"; Days uses 0 = Sunday ... 6 = Saturday.
type SendingWindow struct {
	StartTime string `json:"start_time,omitempty" yaml:"start_time"`
	EndTime   string `json:"end_time,omitempty" yaml:"end_time"`
	Days      []int  `json:"days,omitempty" yaml:"days"`
}

// HumanizationConfig holds the per-campaign pacing settings
type HumanizationConfig struct {
	DelayMinSeconds int            `json:"delay_min" yaml:"delay_min"`
	DelayMaxSeconds int            `json:"delay_max" yaml:"delay_max"`
	RandomizeOrder  bool           `json:"randomize_order" yaml:"randomize_order"`
	Distribution    string         `json:"distribution,omitempty" yaml:"distribution"`
	Window          *SendingWindow `json:"sending_window,omitempty" yaml:"sending_window"`
}

// DelaySample is one generated inter-message delay
type DelaySample struct {
	DurationMs int64 `json:"duration_ms"`
}

// DelayStatistics summarizes a set of delay samples, in milliseconds
type DelayStatistics struct {
	Count  int     `json:"count"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// Status is the read-only view of a campaign run
type Status struct {
	CampaignID                CampaignID      `json:"campaign_id"`
	RunID                     RunID           `json:"run_id"`
	State                     RunState        `json:"state"`
	ProcessedCount            int             `json:"processed_count"`
	RemainingCount            int             `json:"remaining_count"`
	Stats                     DelayStatistics `json:"stats"`
	EstimatedRemainingSeconds float64         `json:"estimated_remaining_seconds"`
	StartedAt                 time.Time       `json:"started_at"`
	FinishedAt                *time.Time      `json:"finished_at,omitempty"`
}

// Dispatch is the "send now" decision handed to the external sender
type Dispatch struct {
	CampaignID CampaignID `json:"campaign_id"`
	RunID      RunID      `json:"run_id"`
	Contact    Contact    `json:"contact"`
	Position   int        `json:"position"` // zero-based index in the run's queue
	DelayMs    int64      `json:"delay_ms"` // humanized delay waited before this dispatch
	At         time.Time  `json:"at"`
}
