package audiocore

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/emberforge/audiocore/internal/logging"
)

// coreMetrics holds the prometheus collectors backing MetricsCollector.
type coreMetrics struct {
	activeSources      *prometheus.GaugeVec
	processedFrames    *prometheus.CounterVec
	processingErrors   *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	framesDropped      *prometheus.CounterVec
	sourceStarts       *prometheus.CounterVec
	sourceStops        *prometheus.CounterVec
	sourceErrors       *prometheus.CounterVec
	sourceGain         *prometheus.GaugeVec
	buffersInUse       *prometheus.GaugeVec
	bufferAllocations  *prometheus.CounterVec
	processorExecs     *prometheus.CounterVec
	processorErrors    *prometheus.CounterVec
	processorDuration  *prometheus.HistogramVec
	processorChainLen  *prometheus.GaugeVec
	gainLevel          *prometheus.GaugeVec
	gainAdjustments    *prometheus.CounterVec
	gainClipping       *prometheus.CounterVec
}

func newCoreMetrics(reg prometheus.Registerer) *coreMetrics {
	factory := promauto.With(reg)
	const ns = "audiocore"

	return &coreMetrics{
		activeSources: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_sources", Help: "Number of active audio sources per manager.",
		}, []string{"manager_id"}),
		processedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "processed_frames_total", Help: "Audio frames successfully processed.",
		}, []string{"manager_id", "source_id"}),
		processingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "processing_errors_total", Help: "Audio processing errors.",
		}, []string{"manager_id", "source_id", "error_type"}),
		processingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "processing_duration_seconds", Help: "Time spent processing a frame.",
			Buckets: prometheus.DefBuckets,
		}, []string{"manager_id", "source_id"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "frames_dropped_total", Help: "Audio frames dropped before delivery.",
		}, []string{"source_id", "reason"}),
		sourceStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "source_starts_total", Help: "Audio source start attempts.",
		}, []string{"source_id", "source_type", "status"}),
		sourceStops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "source_stops_total", Help: "Audio source stop attempts.",
		}, []string{"source_id", "source_type", "status"}),
		sourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "source_errors_total", Help: "Audio source runtime errors.",
		}, []string{"source_id", "source_type", "error_type"}),
		sourceGain: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "source_gain_level", Help: "Current gain level applied to a source.",
		}, []string{"source_id", "source_type"}),
		buffersInUse: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "buffers_in_use", Help: "Active buffers per pool tier.",
		}, []string{"tier"}),
		bufferAllocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "buffer_allocations_total", Help: "Buffer allocations by tier and allocation type.",
		}, []string{"tier", "allocation_type"}),
		processorExecs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "processor_executions_total", Help: "Processor executions by outcome.",
		}, []string{"processor_id", "processor_type", "status"}),
		processorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "processor_errors_total", Help: "Processor execution errors.",
		}, []string{"processor_id", "processor_type", "error_type"}),
		processorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "processor_duration_seconds", Help: "Time spent in a single processor.",
			Buckets: prometheus.DefBuckets,
		}, []string{"processor_id", "processor_type"}),
		processorChainLen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "processor_chain_length", Help: "Number of processors in a source's chain.",
		}, []string{"source_id"}),
		gainLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "gain_processor_level", Help: "Current gain multiplier applied by a gain processor.",
		}, []string{"processor_id"}),
		gainAdjustments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "gain_adjustments_total", Help: "Gain adjustments by direction.",
		}, []string{"processor_id", "adjustment_type"}),
		gainClipping: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "gain_clipping_events_total", Help: "Sample clipping events detected during gain processing.",
		}, []string{"processor_id", "sample_format"}),
	}
}

// MetricsCollector provides metrics collection for audiocore components.
type MetricsCollector struct {
	metrics       *coreMetrics
	enabled       bool
	queueCapacity int
}

var (
	globalMetrics     atomic.Pointer[MetricsCollector]
	globalMetricsOnce sync.Once
	metricsLogger     *slog.Logger
)

// InitMetrics initializes the global metrics collector against the given registry.
// Passing a nil registry disables metrics collection (calls become no-ops).
func InitMetrics(reg prometheus.Registerer) {
	globalMetricsOnce.Do(func() {
		metricsLogger = logging.ForService("audiocore")
		if metricsLogger == nil {
			metricsLogger = slog.Default()
		}
		metricsLogger = metricsLogger.With("component", "metrics")

		mc := &MetricsCollector{
			enabled:       reg != nil,
			queueCapacity: 100,
		}
		if reg != nil {
			mc.metrics = newCoreMetrics(reg)
			metricsLogger.Info("metrics collector initialized")
		} else {
			metricsLogger.Debug("metrics collector disabled")
		}
		globalMetrics.Store(mc)
	})
}

// GetMetrics returns the global metrics collector, or a disabled no-op collector
// if InitMetrics has not been called.
func GetMetrics() *MetricsCollector {
	mc := globalMetrics.Load()
	if mc == nil {
		return &MetricsCollector{enabled: false}
	}
	return mc
}

func (mc *MetricsCollector) SetQueueCapacity(capacity int) {
	mc.queueCapacity = capacity
}

func (mc *MetricsCollector) RecordManagerMetrics(managerID string, m *ManagerMetrics) {
	if !mc.enabled {
		return
	}
	mc.metrics.activeSources.WithLabelValues(managerID).Set(float64(m.ActiveSources))
}

func (mc *MetricsCollector) RecordFrameProcessed(managerID, sourceID string, duration time.Duration) {
	if !mc.enabled {
		return
	}
	mc.metrics.processedFrames.WithLabelValues(managerID, sourceID).Inc()
	if duration > 0 {
		mc.metrics.processingDuration.WithLabelValues(managerID, sourceID).Observe(duration.Seconds())
	}
}

func (mc *MetricsCollector) RecordFrameDropped(sourceID, reason string) {
	if !mc.enabled {
		return
	}
	mc.metrics.framesDropped.WithLabelValues(sourceID, reason).Inc()
	if metricsLogger != nil {
		metricsLogger.Warn("audio frame dropped", "source_id", sourceID, "reason", reason)
	}
}

func (mc *MetricsCollector) RecordProcessingError(managerID, sourceID, errorType string) {
	if !mc.enabled {
		return
	}
	mc.metrics.processingErrors.WithLabelValues(managerID, sourceID, errorType).Inc()
}

func (mc *MetricsCollector) RecordSourceStart(sourceID, sourceType string, success bool) {
	if !mc.enabled {
		return
	}
	mc.metrics.sourceStarts.WithLabelValues(sourceID, sourceType, statusLabel(success)).Inc()
}

func (mc *MetricsCollector) RecordSourceStop(sourceID, sourceType string, success bool) {
	if !mc.enabled {
		return
	}
	mc.metrics.sourceStops.WithLabelValues(sourceID, sourceType, statusLabel(success)).Inc()
}

func (mc *MetricsCollector) RecordSourceError(sourceID, sourceType, errorType string) {
	if !mc.enabled {
		return
	}
	mc.metrics.sourceErrors.WithLabelValues(sourceID, sourceType, errorType).Inc()
}

func (mc *MetricsCollector) UpdateSourceGain(sourceID, sourceType string, gain float64) {
	if !mc.enabled {
		return
	}
	mc.metrics.sourceGain.WithLabelValues(sourceID, sourceType).Set(gain)
}

func (mc *MetricsCollector) RecordBufferPoolStats(tier string, stats BufferPoolStats) {
	if !mc.enabled {
		return
	}
	mc.metrics.buffersInUse.WithLabelValues(tier).Set(float64(stats.ActiveBuffers))
}

func (mc *MetricsCollector) RecordBufferAllocation(poolTier string, fromPool bool) {
	if !mc.enabled {
		return
	}
	allocationType := "pooled"
	if !fromPool {
		allocationType = "custom"
	}
	mc.metrics.bufferAllocations.WithLabelValues(poolTier, allocationType).Inc()
}

func (mc *MetricsCollector) RecordProcessorExecution(processorID, processorType string, duration time.Duration, err error) {
	if !mc.enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		mc.metrics.processorErrors.WithLabelValues(processorID, processorType, "execution_failed").Inc()
	}
	mc.metrics.processorExecs.WithLabelValues(processorID, processorType, status).Inc()
	if duration > 0 {
		mc.metrics.processorDuration.WithLabelValues(processorID, processorType).Observe(duration.Seconds())
	}
}

func (mc *MetricsCollector) UpdateProcessorChainLength(sourceID string, length int) {
	if !mc.enabled {
		return
	}
	mc.metrics.processorChainLen.WithLabelValues(sourceID).Set(float64(length))
}

func (mc *MetricsCollector) RecordGainProcessing(processorID string, gainLevel float64, clippingOccurred bool, sampleFormat string) {
	if !mc.enabled {
		return
	}
	mc.metrics.gainLevel.WithLabelValues(processorID).Set(gainLevel)

	adjustmentType := "no_change"
	switch {
	case gainLevel > 1.0:
		adjustmentType = "increase"
	case gainLevel < 1.0:
		adjustmentType = "decrease"
	}
	mc.metrics.gainAdjustments.WithLabelValues(processorID, adjustmentType).Inc()

	if clippingOccurred {
		mc.metrics.gainClipping.WithLabelValues(processorID, sampleFormat).Inc()
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
