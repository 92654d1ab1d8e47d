// Package metrics holds the Prometheus collectors shared by the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ziggonext"

var (
	// MessagesReceived counts inbound broker messages by dispatch outcome
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound broker messages by dispatch outcome",
		},
		[]string{"kind"},
	)

	// CommandsPublished counts outbound box commands by type
	CommandsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_published_total",
			Help:      "Outbound commands published to boxes",
		},
		[]string{"type"},
	)

	// MetadataLookups counts listing and media-group lookups by result
	MetadataLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Listing and media-group lookups",
		},
		[]string{"kind", "result"},
	)

	// SessionRefreshes counts session logins, including the initial one
	SessionRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Session logins against the web API",
		},
	)

	// BrokerConnects counts broker connect attempts by result
	BrokerConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_connects_total",
			Help:      "Broker connect attempts by result",
		},
		[]string{"result"},
	)

	// ChannelCatalogSize is the number of entries in the current channel catalog
	ChannelCatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_catalog_size",
			Help:      "Entries in the channel catalog, synthetic entries included",
		},
	)

	// BoxState is 1 for the current connectivity state of each box
	BoxState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "box_state",
			Help:      "Connectivity state per box (1 = current)",
		},
		[]string{"box_id", "state"},
	)
)
