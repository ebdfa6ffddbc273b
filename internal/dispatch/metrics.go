package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcripts_filtered_total",
		Help: "Transcripts dropped before dispatch, by reason",
	}, []string{"reason"})

	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_commands_dispatched_total",
		Help: "Commands sent to the executor, by result",
	}, []string{"result"})

	metricBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_dispatch_busy_rejections_total",
		Help: "Critical commands rejected because a confirmation was pending",
	})

	metricQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_dispatch_queue_drops_total",
		Help: "Work items dropped because a session loop queue was full",
	})
)
