// Package metrics exposes supervisor runs and ffmpeg progress as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/protoframe/internal/events"
	"github.com/smazurov/protoframe/internal/ffmpeg"
)

const namespace = "protoframe"

// Run outcomes used as the "outcome" label of runs_total.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeTerminated = "terminated"
)

// Stats holds the latest values seen for the current or most recent run.
type Stats struct {
	RunID        string
	Running      bool
	Samples      int
	Frame        int64
	FPS          float64
	SizeBytes    int64
	Time         time.Duration
	BitrateKbits float64
	Speed        float64
}

// Collector turns supervisor events into Prometheus metrics.
type Collector struct {
	frame   prometheus.Gauge
	fps     prometheus.Gauge
	size    prometheus.Gauge
	time    prometheus.Gauge
	bitrate prometheus.Gauge
	speed   prometheus.Gauge
	running prometheus.Gauge
	runs    *prometheus.CounterVec

	// Local cache for Snapshot.
	mu    sync.RWMutex
	stats Stats
}

// NewCollector registers the collector's metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	c := &Collector{
		frame:   gauge("ffmpeg", "frame", "Frames encoded in the current run"),
		fps:     gauge("ffmpeg", "fps", "Current FFmpeg encoding FPS"),
		size:    gauge("ffmpeg", "size_bytes", "Output size written so far"),
		time:    gauge("ffmpeg", "time_seconds", "Media time encoded so far"),
		bitrate: gauge("ffmpeg", "bitrate_kbits", "Current output bitrate in kbit/s"),
		speed:   gauge("ffmpeg", "speed", "FFmpeg processing speed multiplier"),
		running: gauge("supervisor", "running", "1 while a child process is running"),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "runs_total",
			Help:      "Finished runs by outcome",
		}, []string{"outcome"}),
	}
	for _, outcome := range []string{OutcomeCompleted, OutcomeFailed, OutcomeTerminated} {
		c.runs.WithLabelValues(outcome)
	}
	return c
}

// Attach subscribes the collector to bus.
func (c *Collector) Attach(bus *events.Bus) events.SubscriptionID {
	return bus.Subscribe(c.Handle)
}

// Handle updates metrics from one event.
func (c *Collector) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.Started:
		c.reset(e.RunID)
	case events.Progress:
		if e.Sample.Progress != nil {
			c.observe(e.Sample.Progress)
		}
	case events.Completed:
		c.finish(OutcomeCompleted)
	case events.Failed:
		c.finish(OutcomeFailed)
	case events.Terminated:
		c.finish(OutcomeTerminated)
	}
}

// Snapshot returns a copy of the latest values.
func (c *Collector) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Collector) reset(runID string) {
	for _, g := range []prometheus.Gauge{c.frame, c.fps, c.size, c.time, c.bitrate, c.speed} {
		g.Set(0)
	}
	c.running.Set(1)

	c.mu.Lock()
	c.stats = Stats{RunID: runID, Running: true}
	c.mu.Unlock()
}

// observe applies the fields present in p. Absent fields keep their last value.
func (c *Collector) observe(p *ffmpeg.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Samples++
	if p.Frame != nil {
		c.stats.Frame = *p.Frame
		c.frame.Set(float64(*p.Frame))
	}
	if p.FPS != nil {
		c.stats.FPS = *p.FPS
		c.fps.Set(*p.FPS)
	}
	if p.Size != nil {
		c.stats.SizeBytes = *p.Size
		c.size.Set(float64(*p.Size))
	}
	if p.Time != nil {
		c.stats.Time = *p.Time
		c.time.Set(p.Time.Seconds())
	}
	if p.Bitrate != nil {
		c.stats.BitrateKbits = *p.Bitrate
		c.bitrate.Set(*p.Bitrate)
	}
	if p.Speed != nil {
		c.stats.Speed = *p.Speed
		c.speed.Set(*p.Speed)
	}
}

func (c *Collector) finish(outcome string) {
	c.running.Set(0)
	c.runs.WithLabelValues(outcome).Inc()

	c.mu.Lock()
	c.stats.Running = false
	c.mu.Unlock()
}
