package recognition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_state_transitions_total",
		Help: "Voice session state transitions",
	}, []string{"from", "to"})

	metricEngineRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_engine_restarts_total",
		Help: "Recognition engine restarts after self-termination or TTS",
	})

	metricErrorsSwallowed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_engine_errors_swallowed_total",
		Help: "Expected engine errors silently ignored",
	}, []string{"code"})

	metricResultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_results_dropped_total",
		Help: "Engine results dropped while not listening",
	})

	metricAutoStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_auto_stops_total",
		Help: "Listening sessions ended by the silence auto-stop timer",
	})
)
