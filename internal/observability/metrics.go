package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibely_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// ChatSubscriptions is the number of active conversation subscriptions.
	ChatSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibely_chat_subscriptions",
		Help: "Number of active chat conversation subscriptions",
	})

	// ChatMessagesTotal counts chat messages accepted by the server.
	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibely_chat_messages_total",
		Help: "Total number of chat messages stored",
	})

	// ChatSnapshotsSent counts snapshot frames pushed to listeners.
	ChatSnapshotsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vibely_chat_snapshots_sent_total",
		Help: "Total number of chat snapshot frames delivered to websocket clients",
	})

	// CacheLookups counts cache-aside lookups by key family and result (hit/miss/error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibely_cache_lookups_total",
		Help: "Total number of cache-aside lookups",
	}, []string{"family", "result"})

	// ImagesUploaded counts stored images by detected source format.
	ImagesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibely_images_uploaded_total",
		Help: "Total number of images accepted by the image host",
	}, []string{"format"})
)
