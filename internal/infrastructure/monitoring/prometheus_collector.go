package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements ports.MetricsRecorder over promauto-managed
// collectors registered on the default registry.
type PrometheusCollector struct {
	roomsActive          prometheus.Gauge
	sessionsConnected    prometheus.Gauge
	participantsJoined   prometheus.Gauge
	joinsTotal           prometheus.Counter
	leavesTotal          prometheus.Counter
	broadcastsTotal      prometheus.Counter
	broadcastErrorsTotal prometheus.Counter
	messagesIgnored      prometheus.Counter
	joinDuration         prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_rooms_active",
			Help: "Number of rooms known to the directory",
		}),

		sessionsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_sessions_connected",
			Help: "Number of open transport sessions across all rooms",
		}),

		participantsJoined: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_participants_joined",
			Help: "Number of joined participants across all rooms",
		}),

		joinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_joins_total",
			Help: "Total number of processed join messages creating a participant",
		}),

		leavesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_leaves_total",
			Help: "Total number of participant departures",
		}),

		broadcastsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_broadcasts_total",
			Help: "Total number of messages delivered to broadcast recipients",
		}),

		broadcastErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_broadcast_errors_total",
			Help: "Total number of per-recipient broadcast send failures",
		}),

		messagesIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_messages_ignored_total",
			Help: "Total number of malformed or unexpected inbound messages ignored",
		}),

		joinDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomcast_join_duration_seconds",
			Help:    "Time to process one join message including broadcasts",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

func (c *PrometheusCollector) RoomOpened()        { c.roomsActive.Inc() }
func (c *PrometheusCollector) SessionAttached()   { c.sessionsConnected.Inc() }
func (c *PrometheusCollector) SessionDetached()   { c.sessionsConnected.Dec() }
func (c *PrometheusCollector) ParticipantJoined() {
	c.participantsJoined.Inc()
	c.joinsTotal.Inc()
}
func (c *PrometheusCollector) ParticipantLeft() {
	c.participantsJoined.Dec()
	c.leavesTotal.Inc()
}
func (c *PrometheusCollector) BroadcastSent()  { c.broadcastsTotal.Inc() }
func (c *PrometheusCollector) BroadcastError() { c.broadcastErrorsTotal.Inc() }
func (c *PrometheusCollector) MessageIgnored() { c.messagesIgnored.Inc() }
func (c *PrometheusCollector) ObserveJoinDuration(seconds float64) {
	c.joinDuration.Observe(seconds)
}

// Handler exposes the default prometheus registry.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.Handler()
}
