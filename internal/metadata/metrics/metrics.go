package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the metadata module.
// Tracks writes, rejections by reason, signature outcomes and cache efficiency.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ObjectsCreated    prometheus.Counter
	ObjectsUpdated    prometheus.Counter
	EntriesAppended   prometheus.Counter
	Rejections        *prometheus.CounterVec
	SignatureChecks   *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the metadata metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ObjectsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokenmeta_objects_created_total",
			Help: "Total number of metadata objects created",
		}),
		ObjectsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokenmeta_objects_updated_total",
			Help: "Total number of successful metadata object updates",
		}),
		EntriesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokenmeta_entries_appended_total",
			Help: "Total number of versioned entries written",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenmeta_rejections_total",
			Help: "Requests rejected, by internal error code",
		}, []string{"reason"}),
		SignatureChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenmeta_signature_checks_total",
			Help: "Entry authenticity checks, by result",
		}, []string{"result"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenmeta_cache_lookups_total",
			Help: "Read-through cache operations, by result (hit, miss, bypass, error, stale_fill)",
		}, []string{"result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenmeta_operation_duration_seconds",
			Help:    "Duration of metadata service operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.ObjectsCreated.Inc()
}

func (m *Metrics) IncrementUpdated() {
	if m == nil {
		return
	}
	m.ObjectsUpdated.Inc()
}

// AddEntriesAppended records n versioned entries written in one operation.
func (m *Metrics) AddEntriesAppended(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntriesAppended.Add(float64(n))
}

// IncrementRejection records a rejected request under its error code.
func (m *Metrics) IncrementRejection(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSignatureCheck(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.SignatureChecks.WithLabelValues(result).Inc()
}

// ObserveCacheLookup counts cache outcomes by result label.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveOperation records the duration of a service operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
