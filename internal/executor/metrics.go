package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "voice_executor_retries_total",
	Help: "Command executor retry attempts",
})
