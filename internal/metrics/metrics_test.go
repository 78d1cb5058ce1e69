package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleCounters(t *testing.T) {
	r := New()

	r.CyclesTotal.WithLabelValues(ResultApplied).Inc()
	r.CyclesTotal.WithLabelValues(ResultApplied).Inc()
	r.CyclesTotal.WithLabelValues(ResultError).Inc()
	r.AppliedCommands.Set(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.CyclesTotal.WithLabelValues(ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CyclesTotal.WithLabelValues(ResultError)))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.AppliedCommands))
}

func TestHandlerExposition(t *testing.T) {
	r := New()
	r.CycleDuration.Observe(0.02)
	r.Guests.Set(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "palisade_cycle_duration_seconds")
	assert.Contains(t, body, "palisade_guests 3")
	assert.Contains(t, body, "go_goroutines")
}
