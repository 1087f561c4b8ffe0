// Package sender holds the outbound adapters that receive dispatch decisions.
// Adapters deliver at most once; retries and delivery receipts are the
// responsibility of whatever sits behind them.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single webhook delivery
const DefaultTimeout = 10 * time.Second

var ErrEmptyURL = errors.New("webhook url is required")

// Log writes each dispatch to a zap logger. It never fails.
type Log struct {
	log *zap.Logger
}

// NewLog creates a log sender; a nil logger discards everything
func NewLog(l *zap.Logger) *Log {
	if l == nil {
		l = zap.NewNop()
	}
	return &Log{log: l}
}

// Dispatch logs d at info level
func (s *Log) Dispatch(_ context.Context, d types.Dispatch) error {
	s.log.Info("Dispatch",
		zap.String("campaign", string(d.CampaignID)),
		zap.String("run", string(d.RunID)),
		zap.String("contact", d.Contact.ID),
		zap.Int("position", d.Position),
		zap.Int64("delay_ms", d.DelayMs),
		zap.Time("at", d.At))
	return nil
}

// StatusError is returned when the webhook answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.Code)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

// Webhook POSTs each dispatch as JSON to a fixed URL
type Webhook struct {
	url     string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// WebhookOption configures a Webhook
type WebhookOption func(*Webhook)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithTimeout sets the per-request deadline
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithRateLimit caps deliveries across all campaigns at perSecond.
// Zero or negative leaves deliveries unlimited.
func WithRateLimit(perSecond float64, burst int) WebhookOption {
	return func(w *Webhook) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewWebhook creates a webhook sender targeting url
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	w := &Webhook{
		url:     url,
		timeout: DefaultTimeout,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// webhookPayload is the JSON body of a delivery
type webhookPayload struct {
	CampaignID types.CampaignID `json:"campaign_id"`
	RunID      types.RunID      `json:"run_id"`
	Contact    types.Contact    `json:"contact"`
	Position   int              `json:"position"`
	DelayMs    int64            `json:"delay_ms"`
	At         time.Time        `json:"at"`
}

// Dispatch delivers d once. Any transport error or non-2xx status is returned.
func (w *Webhook) Dispatch(ctx context.Context, d types.Dispatch) error {
	body, err := json.Marshal(webhookPayload{
		CampaignID: d.CampaignID,
		RunID:      d.RunID,
		Contact:    d.Contact,
		Position:   d.Position,
		DelayMs:    d.DelayMs,
		At:         d.At,
	})
	if err != nil {
		return fmt.Errorf("encode dispatch: %w", err)
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%d", d.RunID, d.Position))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
