package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	roomCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worship_room_commands_total",
			Help: "Room coordinator commands by operation and result",
		},
		[]string{"operation", "result"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worship_room_command_duration_seconds",
			Help:    "Time spent running a room command including persistence",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worship_rooms_loaded",
			Help: "Rooms currently held in memory by the coordinator",
		},
	)

	songsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worship_songs_finished_total",
			Help: "Queue entries finished by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worship_websocket_clients",
			Help: "Open websocket connections",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worship_events_published_total",
			Help: "Room events written to the event stream",
		},
		[]string{"result"},
	)
)

// ObserveCommand records one coordinator command.
func ObserveCommand(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	roomCommands.WithLabelValues(operation, result).Inc()
	commandDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func RoomLoaded()   { activeRooms.Inc() }
func RoomUnloaded() { activeRooms.Dec() }

func SongFinished(outcome, reason string) {
	songsFinished.WithLabelValues(outcome, reason).Inc()
}

func ClientConnected()    { websocketClients.Inc() }
func ClientDisconnected() { websocketClients.Dec() }

func EventsPublished(n int, err error) {
	if err != nil {
		eventsPublished.WithLabelValues("error").Add(float64(n))
		return
	}
	eventsPublished.WithLabelValues("ok").Add(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
