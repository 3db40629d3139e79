package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for lessoncast
type Metrics struct {
	// Pipeline metrics
	GenerationRuns     *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Provider metrics
	SpeechFallbacks *prometheus.CounterVec
	ScriptFallbacks prometheus.Counter
	TTSCharacters   prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// New creates and registers all Prometheus metrics. Repeated calls return the
// same instance since the default registry rejects duplicate registration.
func New() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			GenerationRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lessoncast_generation_runs_total",
					Help: "Total number of lesson video generation runs",
				},
				[]string{"result"},
			),
			GenerationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "lessoncast_generation_duration_seconds",
					Help:    "Wall time of lesson video generation runs in seconds",
					Buckets: prometheus.ExponentialBuckets(5, 2, 9), // 5s to ~21min
				},
				[]string{"result"},
			),
			SpeechFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lessoncast_speech_fallbacks_total",
					Help: "Narrations served as mock audio instead of real speech",
				},
				[]string{"reason"},
			),
			ScriptFallbacks: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "lessoncast_script_fallbacks_total",
					Help: "Narration scripts produced by the deterministic fallback",
				},
			),
			TTSCharacters: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "lessoncast_tts_characters_total",
					Help: "Characters sent to the real speech provider",
				},
			),
		}
	})
	return sharedMetrics
}

// ObserveRun records one finished generation run.
func (m *Metrics) ObserveRun(result string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationRuns.WithLabelValues(result).Inc()
	m.GenerationDuration.WithLabelValues(result).Observe(seconds)
}

func (m *Metrics) SpeechFallback(reason string) {
	if m == nil {
		return
	}
	m.SpeechFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ScriptFallback() {
	if m == nil {
		return
	}
	m.ScriptFallbacks.Inc()
}

func (m *Metrics) AddTTSCharacters(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TTSCharacters.Add(float64(n))
}
