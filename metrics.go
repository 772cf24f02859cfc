package labelkit

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    classifyHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordClassify(cells int, duration time.Duration, err error) {
//	    p.classifyHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordLoad is called after each reference load.
	RecordLoad(duration time.Duration, err error)

	// RecordBuild is called after each reference build. shared is the number
	// of features the reference shares with the primary dataset.
	RecordBuild(shared int, duration time.Duration, err error)

	// RecordClassify is called after each classification.
	RecordClassify(cells int, duration time.Duration, err error)

	// RecordIntegrate is called after each integration step. references is
	// the number of references involved.
	RecordIntegrate(references int, duration time.Duration, err error)

	// RecordMatrix is called after each matrix construction or transformation.
	RecordMatrix(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(time.Duration, error)           {}
func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordClassify(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordIntegrate(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordMatrix(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount          atomic.Int64
	LoadErrors         atomic.Int64
	BuildCount         atomic.Int64
	BuildErrors        atomic.Int64
	SharedFeatures     atomic.Int64
	ClassifyCount      atomic.Int64
	ClassifyErrors     atomic.Int64
	ClassifiedCells    atomic.Int64
	ClassifyTotalNanos atomic.Int64
	IntegrateCount     atomic.Int64
	IntegrateErrors    atomic.Int64
	MatrixCount        atomic.Int64
	MatrixErrors       atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(shared int, _ time.Duration, err error) {
	b.BuildCount.Add(1)
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.SharedFeatures.Add(int64(shared))
}

// RecordClassify implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClassify(cells int, duration time.Duration, err error) {
	b.ClassifyCount.Add(1)
	b.ClassifyTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ClassifyErrors.Add(1)
		return
	}
	b.ClassifiedCells.Add(int64(cells))
}

// RecordIntegrate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIntegrate(_ int, _ time.Duration, err error) {
	b.IntegrateCount.Add(1)
	if err != nil {
		b.IntegrateErrors.Add(1)
	}
}

// RecordMatrix implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatrix(_ time.Duration, err error) {
	b.MatrixCount.Add(1)
	if err != nil {
		b.MatrixErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		BuildCount:       b.BuildCount.Load(),
		BuildErrors:      b.BuildErrors.Load(),
		SharedFeatures:   b.SharedFeatures.Load(),
		ClassifyCount:    b.ClassifyCount.Load(),
		ClassifyErrors:   b.ClassifyErrors.Load(),
		ClassifiedCells:  b.ClassifiedCells.Load(),
		ClassifyAvgNanos: b.getAvgClassifyNanos(),
		IntegrateCount:   b.IntegrateCount.Load(),
		IntegrateErrors:  b.IntegrateErrors.Load(),
		MatrixCount:      b.MatrixCount.Load(),
		MatrixErrors:     b.MatrixErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgClassifyNanos() int64 {
	count := b.ClassifyCount.Load()
	if count == 0 {
		return 0
	}
	return b.ClassifyTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount        int64
	LoadErrors       int64
	BuildCount       int64
	BuildErrors      int64
	SharedFeatures   int64
	ClassifyCount    int64
	ClassifyErrors   int64
	ClassifiedCells  int64
	ClassifyAvgNanos int64
	IntegrateCount   int64
	IntegrateErrors  int64
	MatrixCount      int64
	MatrixErrors     int64
}
