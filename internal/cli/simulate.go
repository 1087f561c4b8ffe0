package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/internal/humanize"
	"github.com/ChuLiYu/campaign-dispatch/internal/scheduler"
	"github.com/ChuLiYu/campaign-dispatch/internal/sender"
	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// simulationHorizon caps virtual time so a window that never opens cannot spin forever
const simulationHorizon = 60 * 24 * time.Hour

var errHorizon = errors.New("simulation horizon exceeded")

// campaignFile is the input of the simulate command
type campaignFile struct {
	CampaignID types.CampaignID `json:"campaign_id"`
	Config     map[string]any   `json:"config"`
	Contacts   []types.Contact  `json:"contacts"`
}

// virtualClock advances instantly on Sleep
type virtualClock struct {
	mu    sync.Mutex
	now   time.Time
	limit time.Time
}

func newVirtualClock(start time.Time) *virtualClock {
	return &virtualClock{now: start, limit: start.Add(simulationHorizon)}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	if c.now.After(c.limit) {
		return errHorizon
	}
	return nil
}

func buildSimulateCommand() *cobra.Command {
	var (
		file  string
		start string
		seed  int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one campaign on a virtual clock and print every dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt := time.Now()
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				startAt = t
			}
			return simulate(cmd.Context(), cmd.OutOrStdout(), file, startAt, seed)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "campaign JSON file")
	cmd.Flags().StringVar(&start, "start", "", "virtual start time, RFC3339 (default: now)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: time based)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadCampaignFile(path string) (campaignFile, types.HumanizationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return campaignFile{}, types.HumanizationConfig{}, fmt.Errorf("failed to read campaign file: %w", err)
	}
	var cf campaignFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return campaignFile{}, types.HumanizationConfig{}, fmt.Errorf("failed to parse campaign JSON: %w", err)
	}
	if cf.CampaignID == "" {
		cf.CampaignID = "simulation"
	}
	cfg, err := humanize.ParseConfig(cf.Config)
	if err != nil {
		return campaignFile{}, types.HumanizationConfig{}, err
	}
	return cf, cfg, nil
}

// simulate runs the campaign in-process. Delays and window waits cost no wall time.
func simulate(ctx context.Context, out io.Writer, path string, start time.Time, seed int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cf, cfg, err := loadCampaignFile(path)
	if err != nil {
		return err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	clock := newVirtualClock(start)
	logSender := sender.NewLog(zap.NewNop())
	printer := scheduler.SenderFunc(func(ctx context.Context, d types.Dispatch) error {
		fmt.Fprintf(out, "%s  #%-4d %-16s after %6.1fs\n",
			d.At.Format("Mon 2006-01-02 15:04:05"), d.Position, d.Contact.ID, float64(d.DelayMs)/1000)
		return logSender.Dispatch(ctx, d)
	})

	pollInterval := scheduler.DefaultPollInterval
	processing := humanize.DefaultProcessingSeconds
	if svc, err := loadServiceConfig(); err == nil {
		pollInterval = svc.Scheduler.WindowPollInterval
		processing = svc.Scheduler.AvgProcessingSeconds
	}

	sched := scheduler.New(printer,
		scheduler.WithClock(clock),
		scheduler.WithEngine(humanize.NewEngine(humanize.WithRand(rand.New(rand.NewSource(seed))))),
		scheduler.WithPollInterval(pollInterval),
		scheduler.WithProcessingSeconds(processing),
	)
	defer func() { _ = sched.Stop(context.Background()) }()

	fmt.Fprintf(out, "Simulating %s: %d contacts, delay %d-%ds, seed %d\n",
		cf.CampaignID, len(cf.Contacts), cfg.DelayMinSeconds, cfg.DelayMaxSeconds, seed)

	if _, err := sched.Start(cf.CampaignID, cfg, cf.Contacts); err != nil {
		return err
	}
	st, err := sched.Wait(ctx, cf.CampaignID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	printStatus(out, st)
	if st.FinishedAt != nil {
		fmt.Fprintf(out, "Virtual:    %s\n", st.FinishedAt.Sub(st.StartedAt).Round(time.Second))
	}
	if st.State != types.StateCompleted {
		return fmt.Errorf("simulation ended %s with %d contacts left", st.State, st.RemainingCount)
	}
	return nil
}
