package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementCreated()
	m.IncrementUpdated()
	m.AddEntriesAppended(3)
	m.AddEntriesAppended(0)
	m.IncrementRejection("olderEntryError")
	m.ObserveSignatureCheck(true)
	m.ObserveSignatureCheck(false)
	m.ObserveSignatureCheck(false)
	m.ObserveCacheLookup("hit")
	m.ObserveOperation("create", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectsUpdated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EntriesAppended))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("olderEntryError")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignatureChecks.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementCreated()
		m.IncrementUpdated()
		m.AddEntriesAppended(1)
		m.IncrementRejection("x")
		m.ObserveSignatureCheck(true)
		m.ObserveCacheLookup("miss")
		m.ObserveOperation("read", time.Now())
	})
}
