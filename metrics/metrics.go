package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Live websocket connections",
		},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_connections_rejected_total",
			Help: "Connection attempts rejected at handshake",
		},
		[]string{"reason"}, // "token_missing" or "invalid_token"
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Chat messages persisted",
		},
	)

	ChatErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_errors_total",
			Help: "chat error events emitted to clients",
		},
		[]string{"event", "code"},
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_push_notifications_total",
			Help: "Push notification attempts by result",
		},
		[]string{"result"}, // "sent", "invalid_token", "failed"
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_dropped_frames_total",
			Help: "Outbound frames dropped because a client send buffer was full or closed",
		},
	)
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
