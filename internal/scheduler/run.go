// ============================================================================
// Campaign Run Worker
// ============================================================================
//
// Package: internal/scheduler
// File: run.go
// Function: The single goroutine that owns one campaign run's cursor
//
// Loop:
//   ┌──────────────────────────────────────────────────┐
//   │ shuffle queue once (randomize_order)             │
//   │ for contact := head of queue                     │
//   │   ├─ window closed? waiting, sleep, same contact │
//   │   ├─ sample delay, record it, waiting, sleep     │
//   │   ├─ running, hand contact to Sender             │
//   │   └─ advance cursor                              │
//   │ queue empty -> completed                         │
//   └──────────────────────────────────────────────────┘
//
// Cancellation:
//   Both sleeps observe the run context. A cancel during either wait ends
//   the run as cancelled without dispatching the pending contact.
//
// ============================================================================

package scheduler

import (
	"context"
	"errors"

	"github.com/ChuLiYu/campaign-dispatch/internal/humanize"
	"github.com/ChuLiYu/campaign-dispatch/internal/report"
	"github.com/ChuLiYu/campaign-dispatch/internal/window"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"go.uber.org/zap"
)

// run is one execution of a campaign
type run struct {
	campaignID types.CampaignID
	id         types.RunID
	cfg        types.HumanizationConfig
	cursor     *cursor
	cancel     context.CancelFunc
	done       chan struct{}
}

func (s *Scheduler) work(ctx context.Context, r *run) {
	defer s.wg.Done()
	defer close(r.done)
	defer r.cancel()

	log := s.log.With(
		zap.String("campaign", string(r.campaignID)),
		zap.String("run", string(r.id)))

	if r.cfg.RandomizeOrder {
		r.cursor.reorder(humanize.Shuffle(s.engine, r.cursor.queue))
	}
	r.cursor.setState(types.StateRunning)
	log.Info("Campaign run started", zap.Int("contacts", len(r.cursor.queue)))

	for {
		if ctx.Err() != nil {
			s.finish(r, types.StateCancelled, log)
			return
		}
		contact, pos, ok := r.cursor.head()
		if !ok {
			s.finish(r, types.StateCompleted, log)
			return
		}

		if err := s.awaitWindow(ctx, r, log); err != nil {
			s.finish(r, types.StateCancelled, log)
			return
		}

		delay := s.engine.NextDelay(r.cfg)
		r.cursor.recordSample(delay)
		s.recorder.DelayObserved(delay)

		r.cursor.setState(types.StateWaiting)
		if err := s.clock.Sleep(ctx, delay); err != nil || ctx.Err() != nil {
			s.finish(r, types.StateCancelled, log)
			return
		}
		r.cursor.setState(types.StateRunning)

		d := types.Dispatch{
			CampaignID: r.campaignID,
			RunID:      r.id,
			Contact:    contact,
			Position:   pos,
			DelayMs:    delay.Milliseconds(),
			At:         s.clock.Now(),
		}
		if err := s.sender.Dispatch(ctx, d); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				s.finish(r, types.StateCancelled, log)
				return
			}
			s.recorder.SenderFailed(r.campaignID)
			log.Warn("Sender failed, moving on",
				zap.String("contact", contact.ID),
				zap.Int("position", pos),
				zap.Error(err))
		} else {
			s.recorder.Dispatched(r.campaignID)
			log.Debug("Contact dispatched",
				zap.String("contact", contact.ID),
				zap.Int("position", pos),
				zap.Duration("delay", delay))
		}

		r.cursor.advance()
	}
}

// awaitWindow blocks until the campaign's sending window is open. It sleeps
// for the poll interval, or less when the next opening is sooner.
func (s *Scheduler) awaitWindow(ctx context.Context, r *run, log *zap.Logger) error {
	announced := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.clock.Now()
		if window.IsWithinSendingWindow(r.cfg.Window, now) {
			if announced {
				log.Info("Sending window reopened")
			}
			return nil
		}

		r.cursor.setState(types.StateWaiting)
		s.recorder.WindowWait(r.campaignID)

		wait := s.pollInterval
		if next, ok := window.NextOpening(r.cfg.Window, now); ok {
			if until := next.Sub(now); until > 0 && until < wait {
				wait = until
			}
		}
		if !announced {
			log.Info("Sending window closed, waiting", zap.Duration("poll", wait))
			announced = true
		}

		if err := s.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Scheduler) finish(r *run, state types.RunState, log *zap.Logger) {
	if !r.cursor.finish(state, s.clock.Now()) {
		return
	}
	s.recorder.RunFinished(r.campaignID, state)

	st := r.cursor.snapshot(r, s.processingSeconds)
	log.Info("Campaign run finished",
		zap.String("state", string(state)),
		zap.Int("processed", st.ProcessedCount),
		zap.Int("remaining", st.RemainingCount),
		zap.Float64("mean_delay_ms", st.Stats.Mean))

	if s.reports == nil {
		return
	}
	rep := report.RunReport{
		Status:  st,
		Config:  r.cfg,
		Samples: r.cursor.sampleCopy(),
	}
	if err := s.reports.Save(rep); err != nil {
		log.Error("Failed to save run report", zap.Error(err))
	}
}
