package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mpvbridge"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method",
	}, []string{"method"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by method",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	ipcCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ipc_commands_total",
		Help:      "IPC commands issued, by command and result",
	}, []string{"command", "result"})

	ipcCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ipc_command_duration_seconds",
		Help:      "IPC command round-trip latency",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"command"})

	ipcConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ipc_connect_attempts_total",
		Help:      "IPC connection attempts, by result",
	}, []string{"result"})

	ipcConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ipc_connection_state",
		Help:      "Current IPC connection state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	ipcProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ipc_protocol_errors_total",
		Help:      "Malformed IPC lines discarded",
	})

	stateNotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_notifications_dropped_total",
		Help:      "State change notifications dropped because a subscriber queue was full",
	})

	mediaTicketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_tickets_total",
		Help:      "Media exposure ticket events, by result",
	}, []string{"result"})

	mqttCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_commands_total",
		Help:      "Commands received over MQTT, by action and result",
	}, []string{"action", "result"})
)

var connStates = []string{"disconnected", "connecting", "connected", "closed"}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCommand records one IPC command outcome.
func RecordCommand(command, result string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	ipcCommandsTotal.WithLabelValues(command, result).Inc()
	ipcCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordConnectAttempt(success bool) {
	if success {
		ipcConnectAttempts.WithLabelValues("success").Inc()
		return
	}
	ipcConnectAttempts.WithLabelValues("failure").Inc()
}

// SetConnectionState marks state as the active connection state.
func SetConnectionState(state string) {
	for _, s := range connStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		ipcConnectionState.WithLabelValues(s).Set(v)
	}
}

func RecordProtocolError() { ipcProtocolErrors.Inc() }

func RecordDroppedNotification() { stateNotificationsDropped.Inc() }

// RecordTicket records a gateway ticket event: issued, served, rejected or expired.
func RecordTicket(result string) {
	mediaTicketsTotal.WithLabelValues(result).Inc()
}

func RecordMQTTCommand(action string, err error) {
	if action == "" {
		action = "unknown"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	mqttCommandsTotal.WithLabelValues(action, result).Inc()
}
