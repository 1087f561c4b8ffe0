package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.dispatched, "dispatched counter should be initialized")
	assert.NotNil(t, collector.senderFailures, "senderFailures counter should be initialized")
	assert.NotNil(t, collector.windowWaits, "windowWaits counter should be initialized")
	assert.NotNil(t, collector.fallbacks, "fallbacks counter should be initialized")
	assert.NotNil(t, collector.delay, "delay histogram should be initialized")
	assert.NotNil(t, collector.runsActive, "runsActive gauge should be initialized")
}

func TestRunLifecycle(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RunStarted("a")
	collector.RunStarted("b")
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.runsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.runsStarted))

	collector.RunFinished("a", types.StateCompleted)
	collector.RunFinished("b", types.StateCancelled)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsFinished.WithLabelValues("cancelled")))
}

func TestDispatchCounters(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	for i := 0; i < 3; i++ {
		collector.Dispatched("promo")
	}
	collector.SenderFailed("promo")
	collector.WindowWait("promo")
	collector.WindowWait("other")
	collector.RecordFallback()

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.dispatched.WithLabelValues("promo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.senderFailures.WithLabelValues("promo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.windowWaits.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.fallbacks))
}

func TestDelayObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	delays := []time.Duration{5 * time.Second, 12 * time.Second, 300 * time.Second}
	for _, d := range delays {
		assert.NotPanics(t, func() {
			collector.DelayObserved(d)
		}, "DelayObserved should not panic with %s", d)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(collector.delay))
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RunStarted("c")
			collector.Dispatched("c")
			collector.DelayObserved(10 * time.Second)
			collector.RunFinished("c", types.StateCompleted)
			done <- true
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}

	assert.Equal(t, 100.0, testutil.ToFloat64(collector.dispatched.WithLabelValues("c")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.runsActive))
}

func TestCollectorIsolation(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotNil(t, NewCollector(reg))

	// a second collector on the same registry collides
	assert.Panics(t, func() {
		NewCollector(reg)
	}, "Creating a second collector on one registry should panic")

	// separate registries are independent
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	collector.Dispatched("promo")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `dispatch_messages_dispatched_total{campaign="promo"} 1`), body)
}
