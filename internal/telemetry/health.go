package telemetry

type HealthStatus string

const (
	HealthUnknown  HealthStatus = "unknown"
	HealthNominal  HealthStatus = "nominal"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

const (
	degradedLatencyMs = 500
	criticalLatencyMs = 1000
)

type Health struct {
	Status        HealthStatus `json:"status"`
	LastLatencyMs float64      `json:"last_latency_ms"`
}

// Health grades the most recent sync latency sample.
func (r *Recorder) Health() Health {
	samples := r.Metrics(MetricSyncLatency)
	if len(samples) == 0 {
		return Health{Status: HealthUnknown}
	}
	last := samples[len(samples)-1].Value

	status := HealthNominal
	switch {
	case last > criticalLatencyMs:
		status = HealthCritical
	case last > degradedLatencyMs:
		status = HealthDegraded
	}
	return Health{Status: status, LastLatencyMs: last}
}
