package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zerozero_messages_stored_total",
		Help: "Message records appended to thread storage.",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zerozero_outbound_queue_depth",
		Help: "Messages currently waiting for their peer to come online.",
	})
	queuePurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zerozero_outbound_queue_purged_total",
		Help: "Queued messages dropped because their TTL lapsed.",
	})
	pinsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zerozero_pins_active",
		Help: "Pins currently live (active and unexpired).",
	})
)
