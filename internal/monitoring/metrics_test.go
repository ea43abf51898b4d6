package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposed(t *testing.T) {
	RecordHTTPRequest("GET", 5*time.Millisecond)
	RecordCommand("loadfile", "success", time.Millisecond)
	RecordCommand("", "timeout", time.Second)
	RecordConnectAttempt(true)
	RecordConnectAttempt(false)
	RecordProtocolError()
	RecordDroppedNotification()
	RecordTicket("issued")
	RecordMQTTCommand("play", nil)
	RecordMQTTCommand("", errors.New("bad"))

	body := scrape(t)
	for _, want := range []string{
		`mpvbridge_http_requests_total{method="GET"}`,
		`mpvbridge_ipc_commands_total{command="loadfile",result="success"}`,
		`mpvbridge_ipc_commands_total{command="unknown",result="timeout"}`,
		`mpvbridge_ipc_connect_attempts_total{result="failure"}`,
		`mpvbridge_ipc_protocol_errors_total`,
		`mpvbridge_state_notifications_dropped_total`,
		`mpvbridge_media_tickets_total{result="issued"}`,
		`mpvbridge_mqtt_commands_total{action="play",result="success"}`,
		`mpvbridge_mqtt_commands_total{action="unknown",result="error"}`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestSetConnectionState(t *testing.T) {
	SetConnectionState("connecting")
	SetConnectionState("connected")

	body := scrape(t)
	assert.Contains(t, body, `mpvbridge_ipc_connection_state{state="connected"} 1`)
	assert.Contains(t, body, `mpvbridge_ipc_connection_state{state="connecting"} 0`)
	assert.Contains(t, body, `mpvbridge_ipc_connection_state{state="closed"} 0`)
}
