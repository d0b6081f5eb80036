package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoblock/pkg/metrics"
)

// metaMetrics is the Prometheus implementation of metadata store metrics.
// All methods are safe on a nil receiver.
type metaMetrics struct {
	writes           *prometheus.CounterVec
	reads            *prometheus.CounterVec
	destroys         *prometheus.CounterVec
	checksumFailures *prometheus.CounterVec
}

// NewMetaMetrics creates the Prometheus-backed metadata store metrics
// instance. When metrics are not enabled (InitRegistry not called) the
// returned instance is an inert nil receiver whose methods all no-op.
func NewMetaMetrics() metrics.MetaMetrics {
	if !metrics.IsEnabled() {
		return (*metaMetrics)(nil)
	}

	reg := metrics.GetRegistry()

	return &metaMetrics{
		writes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dittoblock_meta_record_writes_total",
			Help: "Total number of superblock record writes by record kind",
		}, []string{"kind"}),
		reads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dittoblock_meta_record_reads_total",
			Help: "Total number of superblock records surfaced during scans by record kind",
		}, []string{"kind"}),
		destroys: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dittoblock_meta_record_destroys_total",
			Help: "Total number of superblock record removals by record kind",
		}, []string{"kind"}),
		checksumFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dittoblock_meta_checksum_failures_total",
			Help: "Total number of superblock records that failed checksum verification",
		}, []string{"kind"}),
	}
}

func (m *metaMetrics) RecordWrite(kind string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind).Inc()
}

func (m *metaMetrics) RecordRead(kind string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(kind).Inc()
}

func (m *metaMetrics) RecordDestroy(kind string) {
	if m == nil {
		return
	}
	m.destroys.WithLabelValues(kind).Inc()
}

func (m *metaMetrics) RecordChecksumFailure(kind string) {
	if m == nil {
		return
	}
	m.checksumFailures.WithLabelValues(kind).Inc()
}

var _ metrics.MetaMetrics = (*metaMetrics)(nil)
