package humanize

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"go.uber.org/zap"
)

// Engine samples humanized delays from its own random source.
// It is safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	rng        *rand.Rand
	log        *zap.Logger
	onFallback func()
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithRand sets the random source, mostly for deterministic tests
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithLogger sets the logger used to report degraded input
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithFallbackHook registers fn to be called every time the fallback delay range is used
func WithFallbackHook(fn func()) EngineOption {
	return func(e *Engine) { e.onFallback = fn }
}

// NewEngine creates an Engine seeded from the current time unless WithRand is given
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// CalculateDelay returns a uniform delay in milliseconds within
// [minSeconds*1000, maxSeconds*1000]. Invalid bounds fall back to the
// fallback range instead of failing.
func (e *Engine) CalculateDelay(minSeconds, maxSeconds int) int64 {
	minSeconds, maxSeconds = e.checkBounds(minSeconds, maxSeconds)
	minMs := int64(minSeconds) * 1000
	maxMs := int64(maxSeconds) * 1000

	e.mu.Lock()
	defer e.mu.Unlock()
	return minMs + e.rng.Int63n(maxMs-minMs+1)
}

// NormalRandom samples a normal distribution using the Box-Muller transform
func (e *Engine) NormalRandom(mean, stdDev float64) float64 {
	if stdDev == 0 {
		return mean
	}
	e.mu.Lock()
	// u1 in (0, 1] keeps the logarithm finite
	u1 := 1 - e.rng.Float64()
	u2 := e.rng.Float64()
	e.mu.Unlock()

	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z*stdDev
}

// NextDelay returns the delay for the next contact of a campaign using the
// configured distribution. Normal samples are centered on the middle of the
// range with stdDev = range/6 and clamped to the range.
func (e *Engine) NextDelay(cfg types.HumanizationConfig) time.Duration {
	if cfg.Distribution != types.DistributionNormal {
		return time.Duration(e.CalculateDelay(cfg.DelayMinSeconds, cfg.DelayMaxSeconds)) * time.Millisecond
	}

	minSeconds, maxSeconds := e.checkBounds(cfg.DelayMinSeconds, cfg.DelayMaxSeconds)
	minMs := float64(minSeconds) * 1000
	maxMs := float64(maxSeconds) * 1000

	sample := e.NormalRandom((minMs+maxMs)/2, (maxMs-minMs)/6)
	ms := math.Round(math.Min(math.Max(sample, minMs), maxMs))
	return time.Duration(ms) * time.Millisecond
}

func (e *Engine) checkBounds(minSeconds, maxSeconds int) (int, int) {
	if validBounds(minSeconds, maxSeconds) {
		return minSeconds, maxSeconds
	}
	e.log.Warn("Delay bounds out of range, using fallback",
		zap.Int("delay_min", minSeconds),
		zap.Int("delay_max", maxSeconds),
		zap.Int("fallback_min", FallbackDelayMinSeconds),
		zap.Int("fallback_max", FallbackDelayMaxSeconds))
	if e.onFallback != nil {
		e.onFallback()
	}
	return FallbackDelayMinSeconds, FallbackDelayMaxSeconds
}

var defaultEngine = NewEngine()

// CalculateDelay returns a uniform delay in milliseconds using the package engine
func CalculateDelay(minSeconds, maxSeconds int) int64 {
	return defaultEngine.CalculateDelay(minSeconds, maxSeconds)
}

// NormalRandom samples a normal distribution using the package engine
func NormalRandom(mean, stdDev float64) float64 {
	return defaultEngine.NormalRandom(mean, stdDev)
}
