package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tr1v3r/pkg/log"

	"github.com/tr1v3r/mpvbridge/internal/media"
	"github.com/tr1v3r/mpvbridge/internal/monitoring"
	"github.com/tr1v3r/mpvbridge/internal/mpv"
	"github.com/tr1v3r/mpvbridge/internal/state"
)

// DefaultMediaRate is the per-client request budget for media URLs. mpv
// issues a handful of range requests per file; anything far above that is
// someone guessing tokens.
const DefaultMediaRate = 120

// StateSource yields the mirrored playback state.
type StateSource interface {
	Snapshot() state.PlaybackState
}

// ConnStater reports the IPC connection state.
type ConnStater interface {
	State() mpv.ConnState
}

type Routes struct {
	Gateway   *media.Gateway // nil disables /media
	State     StateSource
	Conn      ConnStater
	MediaRate int // requests per minute per client IP
}

func NewRouter(rt Routes) chi.Router {
	r := chi.NewRouter()
	r.Use(LogMiddleware)

	if rt.Gateway != nil {
		rate := rt.MediaRate
		if rate <= 0 {
			rate = DefaultMediaRate
		}
		r.With(httprate.LimitByIP(rate, time.Minute)).Mount(media.RoutePrefix, rt.Gateway.Routes())
	}

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(rt.State.Snapshot()); err != nil {
			log.Error("encode state: %v", err)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		s := rt.Conn.State()
		if s != mpv.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(s.String() + "\n"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("mpvbridge running\n"))
	})
	return r
}

func LogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Info("HTTP request method=%s path=%s remote_addr=%s user_agent=%s",
			r.Method, r.URL.Path, r.RemoteAddr, r.UserAgent())

		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		// Record metrics
		monitoring.RecordHTTPRequest(r.Method, duration)

		log.Debug("HTTP request completed method=%s path=%s duration=%s",
			r.Method, r.URL.Path, duration.String())
	})
}
