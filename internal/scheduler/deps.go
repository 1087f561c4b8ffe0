package scheduler

import (
	"context"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/internal/report"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
)

// Sender receives "send now" decisions. Delivery, retries and delivery
// status belong to the implementation; the scheduler only decides when.
type Sender interface {
	Dispatch(ctx context.Context, d types.Dispatch) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, d types.Dispatch) error

// Dispatch calls f
func (f SenderFunc) Dispatch(ctx context.Context, d types.Dispatch) error {
	return f(ctx, d)
}

// Clock is the time source of the scheduler
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recorder receives scheduler events for metrics
type Recorder interface {
	RunStarted(id types.CampaignID)
	RunFinished(id types.CampaignID, state types.RunState)
	Dispatched(id types.CampaignID)
	SenderFailed(id types.CampaignID)
	DelayObserved(d time.Duration)
	WindowWait(id types.CampaignID)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(types.CampaignID)                  {}
func (nopRecorder) RunFinished(types.CampaignID, types.RunState) {}
func (nopRecorder) Dispatched(types.CampaignID)                  {}
func (nopRecorder) SenderFailed(types.CampaignID)                {}
func (nopRecorder) DelayObserved(time.Duration)                  {}
func (nopRecorder) WindowWait(types.CampaignID)                  {}

// ReportSink persists the summary of finished runs
type ReportSink interface {
	Save(r report.RunReport) error
}
