package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun("attach", time.Second, nil)
	m.ObserveRun("attach", time.Second, errors.New("boom"))
	m.ObserveRun("dedupe", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("attach", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("attach", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RunDuration))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRun("attach", time.Second, nil) })
}
