package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats is the §6 telemetry snapshot, readable at any time under statsMu
// (§9: "mutex-guarded statistics with copyable-with-lock semantics becomes
// an atomic snapshot type read once per UI frame").
type Stats struct {
	AudioObjects       int
	ActiveEvents       int
	ActiveSounds       int
	TotalSources       int
	MemEngine          uint64
	MemResourceManager uint64
	FrameTime          time.Duration
}

// statsCollector guards the live Stats value and mirrors it into prometheus
// gauges for external scraping, alongside the spec-mandated mutex snapshot.
type statsCollector struct {
	mu    sync.Mutex
	stats Stats

	audioObjects       prometheus.Gauge
	activeEvents       prometheus.Gauge
	activeSounds       prometheus.Gauge
	totalSources       prometheus.Gauge
	memEngine          prometheus.Gauge
	memResourceManager prometheus.Gauge
	frameTimeSeconds   prometheus.Gauge
}

func newStatsCollector(reg prometheus.Registerer) *statsCollector {
	if reg == nil {
		return &statsCollector{}
	}
	factory := promauto.With(reg)
	const ns = "audiocore_engine"
	return &statsCollector{
		audioObjects:       factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "audio_objects", Help: "Objects with at least one active event."}),
		activeEvents:       factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "active_events", Help: "Events currently in the registry."}),
		activeSounds:       factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "active_sounds", Help: "Voices currently active."}),
		totalSources:       factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "total_sources", Help: "Voice pool size."}),
		memEngine:          factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "mem_engine_bytes", Help: "Approximate engine-owned memory."}),
		memResourceManager: factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "mem_resource_manager_bytes", Help: "Approximate resource manager memory (preloaded assets)."}),
		frameTimeSeconds:   factory.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "frame_time_seconds", Help: "Last measured update() tick duration."}),
	}
}

func (c *statsCollector) publish(s Stats) {
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()

	if c.audioObjects == nil {
		return
	}
	c.audioObjects.Set(float64(s.AudioObjects))
	c.activeEvents.Set(float64(s.ActiveEvents))
	c.activeSounds.Set(float64(s.ActiveSounds))
	c.totalSources.Set(float64(s.TotalSources))
	c.memEngine.Set(float64(s.MemEngine))
	c.memResourceManager.Set(float64(s.MemResourceManager))
	c.frameTimeSeconds.Set(s.FrameTime.Seconds())
}

func (c *statsCollector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
