// Package media exposes local files to a remote mpv over single-use HTTP URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tr1v3r/pkg/log"

	"github.com/tr1v3r/mpvbridge/internal/monitoring"
)

const (
	DefaultTTL   = 5 * time.Minute
	DefaultGrace = 30 * time.Second

	// RoutePrefix is where the gateway is mounted.
	RoutePrefix = "/media"
)

var (
	ErrNotRegularFile = errors.New("media: not a regular file")
	ErrNoBaseURL      = errors.New("media: gateway has no base URL")
)

// Ticket maps an opaque token to a local file.
type Ticket struct {
	Token     string
	Path      string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// FirstFetch is zero until the ticket is consumed.
	FirstFetch time.Time
	inflight   int
}

func (t *Ticket) consumed() bool { return !t.FirstFetch.IsZero() }

type Options struct {
	Fs      afero.Fs // defaults to the OS filesystem
	BaseURL string   // public URL of the HTTP server, e.g. http://192.168.1.5:8200
	TTL     time.Duration
	Grace   time.Duration
	Now     func() time.Time
}

// Gateway issues tickets and serves them.
type Gateway struct {
	fs      afero.Fs
	baseURL string
	ttl     time.Duration
	grace   time.Duration
	now     func() time.Time

	mu      sync.Mutex
	tickets map[string]*Ticket
}

func NewGateway(opts Options) *Gateway {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		fs:      opts.Fs,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		ttl:     opts.TTL,
		grace:   opts.Grace,
		now:     opts.Now,
		tickets: make(map[string]*Ticket),
	}
}

// IssueTicket registers path and returns the URL mpv should load.
func (g *Gateway) IssueTicket(path string) (string, error) {
	if g.baseURL == "" {
		return "", ErrNoBaseURL
	}
	fi, err := g.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("media: stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	now := g.now()
	t := &Ticket{
		Token:     uuid.NewString(),
		Path:      path,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.ttl),
	}

	g.mu.Lock()
	g.tickets[t.Token] = t
	g.mu.Unlock()

	monitoring.RecordTicket("issued")
	log.Debug("media: issued ticket %s for %s", t.Token, path)
	return g.baseURL + RoutePrefix + "/" + t.Token + "/" + url.PathEscape(filepath.Base(path)), nil
}

// Revoke invalidates token immediately.
func (g *Gateway) Revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tickets, token)
}

// RevokeURL invalidates the ticket behind a URL returned by IssueTicket.
// URLs not issued by g are ignored.
func (g *Gateway) RevokeURL(u string) {
	rest, ok := strings.CutPrefix(u, g.baseURL+RoutePrefix+"/")
	if !ok {
		return
	}
	token, _, _ := strings.Cut(rest, "/")
	g.Revoke(token)
	log.Debug("media: revoked ticket %s", token)
}

// Len reports the number of live tickets.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tickets)
}

// Sweep drops expired tickets that are not being served.
func (g *Gateway) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for token, t := range g.tickets {
		if t.inflight == 0 && !now.Before(t.ExpiresAt) {
			delete(g.tickets, token)
			n++
			monitoring.RecordTicket("expired")
		}
	}
	return n
}

// Run sweeps expired tickets until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := time.NewTicker(max(g.ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := g.Sweep(g.now()); n > 0 {
				log.Debug("media: swept %d expired tickets", n)
			}
		}
	}
}

// Routes is mounted at RoutePrefix. The trailing file name is cosmetic; it
// gives mpv a title and an extension hint.
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()
	serve := func(w http.ResponseWriter, r *http.Request) {
		g.Serve(w, r, chi.URLParam(r, "token"))
	}
	r.Get("/{token}", serve)
	r.Head("/{token}", serve)
	r.Get("/{token}/{name}", serve)
	r.Head("/{token}/{name}", serve)
	return r
}

// acquire marks a fetch of token as in flight. A ticket is consumed by its
// first consuming fetch (GET, not HEAD) and then stays valid only while a
// response is in flight or within grace after the last one completed.
func (g *Gateway) acquire(token string, consume bool) (*Ticket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tickets[token]
	if !ok {
		return nil, false
	}
	now := g.now()
	if t.inflight == 0 && !now.Before(t.ExpiresAt) {
		delete(g.tickets, token)
		monitoring.RecordTicket("expired")
		return nil, false
	}
	if t.consumed() && g.grace == 0 {
		return nil, false
	}
	if consume && !t.consumed() {
		t.FirstFetch = now
	}
	t.inflight++
	return t, true
}

func (g *Gateway) release(t *Ticket) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t.inflight--
	if t.inflight > 0 || !t.consumed() {
		return
	}
	if g.grace == 0 {
		delete(g.tickets, t.Token)
		return
	}
	t.ExpiresAt = g.now().Add(g.grace)
}

// Serve streams the file behind token. Unknown, expired or consumed tokens
// get 404.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, token string) {
	t, ok := g.acquire(token, r.Method != http.MethodHead)
	if !ok {
		monitoring.RecordTicket("rejected")
		http.NotFound(w, r)
		return
	}
	defer g.release(t)

	f, err := g.fs.Open(t.Path)
	if err != nil {
		log.Error("media: open %s: %v", t.Path, err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(t.Path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-store")
	log.Debug("media: serving %s range=%q", t.Path, r.Header.Get("Range"))
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	monitoring.RecordTicket("served")
}
