// Package telemetry keeps a bounded in-memory record of client-side logs
// and metrics, mirrored to a zerolog logger.
package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultCapacity = 100

	MetricSyncLatency = "sync_latency"
)

type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarn     Level = "WARN"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type MetricEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// Sink receives telemetry from the sync engine.
type Sink interface {
	Log(level Level, message string, fields map[string]any)
	TrackMetric(name string, value float64, unit string)
}

type nopSink struct{}

func (nopSink) Log(Level, string, map[string]any)   {}
func (nopSink) TrackMetric(string, float64, string) {}

// Nop discards everything.
var Nop Sink = nopSink{}

// Recorder is a Sink holding the most recent entries in fixed-size rings.
type Recorder struct {
	mu      sync.RWMutex
	logs    ring[LogEntry]
	metrics ring[MetricEntry]
	logger  zerolog.Logger
	now     func() time.Time
}

func NewRecorder(logger zerolog.Logger, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		logs:    newRing[LogEntry](capacity),
		metrics: newRing[MetricEntry](capacity),
		logger:  logger,
		now:     time.Now,
	}
}

func (r *Recorder) Log(level Level, message string, fields map[string]any) {
	entry := LogEntry{Timestamp: r.now(), Level: level, Message: message, Fields: fields}

	r.mu.Lock()
	r.logs.push(entry)
	r.mu.Unlock()

	var ev *zerolog.Event
	switch level {
	case LevelWarn:
		ev = r.logger.Warn()
	case LevelError, LevelCritical:
		ev = r.logger.Error()
	default:
		ev = r.logger.Info()
	}
	ev.Str("severity", string(level)).Fields(fields).Msg(message)
}

func (r *Recorder) TrackMetric(name string, value float64, unit string) {
	r.mu.Lock()
	r.metrics.push(MetricEntry{Timestamp: r.now(), Name: name, Value: value, Unit: unit})
	r.mu.Unlock()

	r.logger.Debug().Str("metric", name).Float64("value", value).Str("unit", unit).Msg("metric")
}

// Logs returns the retained log entries, oldest first.
func (r *Recorder) Logs() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logs.items()
}

// Metrics returns retained metrics, oldest first, filtered by name when
// name is non-empty.
func (r *Recorder) Metrics(name string) []MetricEntry {
	r.mu.RLock()
	all := r.metrics.items()
	r.mu.RUnlock()

	if name == "" {
		return all
	}
	filtered := make([]MetricEntry, 0, len(all))
	for _, m := range all {
		if m.Name == name {
			filtered = append(filtered, m)
		}
	}
	return filtered
}
