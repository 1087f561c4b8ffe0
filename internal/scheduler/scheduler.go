// ============================================================================
// Dispatch Scheduler
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Function: Registry of campaign runs, one worker goroutine per running campaign
//
// State machine (per run):
//   idle ──start──> running <──> waiting
//                      │            │
//                      ├─ queue empty ─> completed
//                      └─ cancel ──────> cancelled
//
// Concurrency:
//   - runs map guarded by mu; workers never touch it
//   - each cursor has exactly one writer (its worker)
//   - Start/Cancel/Status/List are the only entry points
//   - distinct campaigns share no mutable state
//
// Shutdown:
//   Stop cancels the base context, then waits for all workers.
//
// ============================================================================

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/internal/humanize"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning   = errors.New("campaign already has an active run")
	ErrUnknownCampaign  = errors.New("unknown campaign")
	ErrEmptyCampaignID  = errors.New("campaign id is required")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// DefaultPollInterval is how often a closed sending window is re-checked
const DefaultPollInterval = time.Minute

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithEngine sets the humanization engine
func WithEngine(e *humanize.Engine) Option {
	return func(s *Scheduler) { s.engine = e }
}

// WithPollInterval sets how often a closed window is re-checked
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithProcessingSeconds sets the per-contact overhead used for ETA estimates
func WithProcessingSeconds(sec float64) Option {
	return func(s *Scheduler) {
		if sec >= 0 {
			s.processingSeconds = sec
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithReports persists a report for each finished run
func WithReports(sink ReportSink) Option {
	return func(s *Scheduler) { s.reports = sink }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler runs campaigns concurrently, at most one run per campaign
type Scheduler struct {
	mu   sync.RWMutex
	runs map[types.CampaignID]*run

	sender            Sender
	engine            *humanize.Engine
	clock             Clock
	recorder          Recorder
	reports           ReportSink
	log               *zap.Logger
	pollInterval      time.Duration
	processingSeconds float64

	baseCtx context.Context
	stopAll context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler that hands dispatch decisions to sender
func New(sender Sender, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runs:              make(map[types.CampaignID]*run),
		sender:            sender,
		clock:             realClock{},
		recorder:          nopRecorder{},
		log:               zap.NewNop(),
		pollInterval:      DefaultPollInterval,
		processingSeconds: humanize.DefaultProcessingSeconds,
		baseCtx:           ctx,
		stopAll:           cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = humanize.NewEngine(humanize.WithLogger(s.log))
	}
	return s
}

// Start validates cfg and launches a run for campaignID. A config with
// violations returns *humanize.ValidationError and nothing is started.
func (s *Scheduler) Start(campaignID types.CampaignID, cfg types.HumanizationConfig, contacts []types.Contact) (types.RunID, error) {
	if campaignID == "" {
		return "", ErrEmptyCampaignID
	}
	if err := humanize.Validate(cfg); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", ErrSchedulerStopped
	}
	if existing, ok := s.runs[campaignID]; ok && !existing.cursor.currentState().Terminal() {
		return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, campaignID)
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	r := &run{
		campaignID: campaignID,
		id:         types.RunID(uuid.NewString()),
		cfg:        cloneConfig(cfg),
		cursor:     newCursor(contacts, s.clock.Now()),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.runs[campaignID] = r

	s.recorder.RunStarted(campaignID)
	s.wg.Add(1)
	go s.work(ctx, r)

	return r.id, nil
}

// cloneConfig detaches the run from the caller's window and day slice
func cloneConfig(cfg types.HumanizationConfig) types.HumanizationConfig {
	if cfg.Window != nil {
		w := *cfg.Window
		w.Days = append([]int(nil), cfg.Window.Days...)
		cfg.Window = &w
	}
	return cfg
}

// Cancel stops the active run of campaignID. Cancelling a finished run is a no-op.
func (s *Scheduler) Cancel(campaignID types.CampaignID) error {
	r, err := s.lookup(campaignID)
	if err != nil {
		return err
	}
	r.cancel()
	return nil
}

// Status returns the current view of the latest run of campaignID
func (s *Scheduler) Status(campaignID types.CampaignID) (types.Status, error) {
	r, err := s.lookup(campaignID)
	if err != nil {
		return types.Status{}, err
	}
	return r.cursor.snapshot(r, s.processingSeconds), nil
}

// List returns the status of every known campaign, ordered by campaign id
func (s *Scheduler) List() []types.Status {
	s.mu.RLock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	out := make([]types.Status, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.cursor.snapshot(r, s.processingSeconds))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}

// Wait blocks until the latest run of campaignID ends or ctx is done
func (s *Scheduler) Wait(ctx context.Context, campaignID types.CampaignID) (types.Status, error) {
	r, err := s.lookup(campaignID)
	if err != nil {
		return types.Status{}, err
	}
	select {
	case <-r.done:
		return r.cursor.snapshot(r, s.processingSeconds), nil
	case <-ctx.Done():
		return types.Status{}, ctx.Err()
	}
}

// Stop cancels every run and waits for the workers to exit or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.log.Info("Stopping scheduler...")
	s.stopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for campaign workers: %w", ctx.Err())
	}
}

func (s *Scheduler) lookup(campaignID types.CampaignID) (*run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[campaignID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCampaign, campaignID)
	}
	return r, nil
}
