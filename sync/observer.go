package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Observer receives diagnostic events from streams. Implementations must be
// safe for concurrent use when streams run in parallel.
type Observer interface {
	Sanitized(stream string, removed int)
	PageRead(stream string, records int, final bool)
	SchemaInferred(stream string, fields int)
	RetryScheduled(stream string, err error, wait time.Duration)
	DecodeFailed(stream string, err error)
}

type NopObserver struct{}

func (NopObserver) Sanitized(string, int)                       {}
func (NopObserver) PageRead(string, int, bool)                  {}
func (NopObserver) SchemaInferred(string, int)                  {}
func (NopObserver) RetryScheduled(string, error, time.Duration) {}
func (NopObserver) DecodeFailed(string, error)                  {}

// Observers fans every event out to each observer in turn.
type Observers []Observer

func (o Observers) Sanitized(stream string, removed int) {
	for _, each := range o {
		each.Sanitized(stream, removed)
	}
}

func (o Observers) PageRead(stream string, records int, final bool) {
	for _, each := range o {
		each.PageRead(stream, records, final)
	}
}

func (o Observers) SchemaInferred(stream string, fields int) {
	for _, each := range o {
		each.SchemaInferred(stream, fields)
	}
}

func (o Observers) RetryScheduled(stream string, err error, wait time.Duration) {
	for _, each := range o {
		each.RetryScheduled(stream, err, wait)
	}
}

func (o Observers) DecodeFailed(stream string, err error) {
	for _, each := range o {
		each.DecodeFailed(stream, err)
	}
}

// LogObserver writes events to a zap logger.
type LogObserver struct {
	Logger *zap.Logger
}

func (o LogObserver) Sanitized(stream string, removed int) {
	o.Logger.Debug("removed null characters from response",
		zap.String("stream", stream), zap.Int("removed", removed))
}

func (o LogObserver) PageRead(stream string, records int, final bool) {
	o.Logger.Info("read page",
		zap.String("stream", stream), zap.Int("records", records), zap.Bool("final", final))
}

func (o LogObserver) SchemaInferred(stream string, fields int) {
	o.Logger.Debug("inferred schema", zap.String("stream", stream), zap.Int("fields", fields))
}

func (o LogObserver) RetryScheduled(stream string, err error, wait time.Duration) {
	o.Logger.Warn("retrying request",
		zap.String("stream", stream), zap.Duration("wait", wait), zap.Error(err))
}

func (o LogObserver) DecodeFailed(stream string, err error) {
	o.Logger.Error("failed to decode page", zap.String("stream", stream), zap.Error(err))
}

// MetricsObserver counts events with prometheus counters labelled by stream.
type MetricsObserver struct {
	pages     *prometheus.CounterVec
	records   *prometheus.CounterVec
	retries   *prometheus.CounterVec
	sanitized *prometheus.CounterVec
	decodes   *prometheus.CounterVec
}

// NewMetricsObserver registers the connector's counters with reg.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	factory := promauto.With(reg)
	return &MetricsObserver{
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubble_pages_read_total",
			Help: "Pages decoded successfully.",
		}, []string{"stream"}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubble_records_read_total",
			Help: "Records decoded successfully.",
		}, []string{"stream"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubble_retries_total",
			Help: "Page requests scheduled for another attempt.",
		}, []string{"stream"}),
		sanitized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubble_sanitized_chars_total",
			Help: "Null characters removed from response bodies.",
		}, []string{"stream"}),
		decodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hubble_decode_failures_total",
			Help: "Response bodies that could not be decoded.",
		}, []string{"stream"}),
	}
}

func (m *MetricsObserver) Sanitized(stream string, removed int) {
	m.sanitized.WithLabelValues(stream).Add(float64(removed))
}

func (m *MetricsObserver) PageRead(stream string, records int, _ bool) {
	m.pages.WithLabelValues(stream).Inc()
	m.records.WithLabelValues(stream).Add(float64(records))
}

func (m *MetricsObserver) SchemaInferred(string, int) {}

func (m *MetricsObserver) RetryScheduled(stream string, _ error, _ time.Duration) {
	m.retries.WithLabelValues(stream).Inc()
}

func (m *MetricsObserver) DecodeFailed(stream string, _ error) {
	m.decodes.WithLabelValues(stream).Inc()
}
