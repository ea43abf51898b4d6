package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr1v3r/mpvbridge/internal/media"
	"github.com/tr1v3r/mpvbridge/internal/mpv"
	"github.com/tr1v3r/mpvbridge/internal/state"
)

type connState mpv.ConnState

func (c connState) State() mpv.ConnState { return mpv.ConnState(c) }

func newTestServer(t *testing.T, conn mpv.ConnState) (*httptest.Server, *media.Gateway, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/videos/clip.mp4", []byte("0123456789"), 0o644))

	srv := httptest.NewUnstartedServer(nil)
	gw := media.NewGateway(media.Options{Fs: fs, BaseURL: "http://" + srv.Listener.Addr().String()})
	srv.Config.Handler = NewRouter(Routes{
		Gateway: gw,
		State:   state.NewMirror(),
		Conn:    connState(conn),
	})
	srv.Start()
	t.Cleanup(srv.Close)
	return srv, gw, fs
}

func TestStateEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, mpv.Disconnected)

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st state.PlaybackState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, state.StatusIdle, st.Status)
	assert.False(t, st.Available)
}

func TestHealthz(t *testing.T) {
	for _, tc := range []struct {
		conn mpv.ConnState
		code int
	}{
		{mpv.Connected, http.StatusOK},
		{mpv.Connecting, http.StatusServiceUnavailable},
		{mpv.Disconnected, http.StatusServiceUnavailable},
	} {
		srv, _, _ := newTestServer(t, tc.conn)
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, tc.code, resp.StatusCode, tc.conn.String())
		assert.Equal(t, tc.conn.String()+"\n", string(body))
	}
}

func TestMediaMounted(t *testing.T) {
	srv, gw, _ := newTestServer(t, mpv.Connected)

	u, err := gw.IssueTicket("/videos/clip.mp4")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, srv.URL+media.RoutePrefix+"/"))

	resp, err := http.Get(u)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0123456789", string(body))

	resp, err = http.Get(srv.URL + media.RoutePrefix + "/not-a-token")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, mpv.Connected)

	// hit something first so the request counter has a sample
	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mpvbridge_http_requests_total")
}
