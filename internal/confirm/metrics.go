package confirm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_confirmation_outcomes_total",
		Help: "Confirmation episode outcomes",
	}, []string{"outcome"})

	metricBusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_confirmation_busy_rejections_total",
		Help: "Critical commands rejected while another confirmation was pending",
	})
)
