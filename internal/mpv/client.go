package mpv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tr1v3r/pkg/log"
	"golang.org/x/time/rate"

	"github.com/tr1v3r/mpvbridge/internal/monitoring"
)

const (
	DefaultCallTimeout     = 5 * time.Second
	DefaultMalformedBurst  = 10
	DefaultMalformedWindow = 10 * time.Second
)

// EventHandler receives everything the reader task does not route to the
// correlator. Both methods must return quickly: HandleEvent runs on the
// reader goroutine.
type EventHandler interface {
	HandleEvent(Event)
	HandleConnState(ConnState)
}

// BackoffPolicy is the reconnect schedule: capped exponential backoff.
type BackoffPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      float64
	MaxAttempts int // consecutive failed attempts before giving up, 0 retries forever
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

func (p BackoffPolicy) newBackOff() *backoff.ExponentialBackOff {
	def := DefaultBackoffPolicy()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = def.Initial
	}
	b.MaxInterval = p.Max
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// Options configures a Client.
type Options struct {
	Name      string // used in logs, defaults to "mpv"
	Transport Transport
	Handler   EventHandler

	CallTimeout time.Duration
	Backoff     BackoffPolicy

	// QueueLimit is how many callers may wait for a connection while
	// (re)connecting. Zero means fail fast with ErrNotConnected.
	QueueLimit int

	MalformedBurst  int
	MalformedWindow time.Duration

	Properties []Property // defaults to ObservedProperties
}

// Client is one logical IPC connection to mpv. It correlates command replies,
// forwards events to its handler and reconnects on its own.
type Client struct {
	opts    Options
	pending *correlator

	mu      sync.Mutex
	state   ConnState
	conn    Conn
	ready   chan struct{} // closed while Connected
	closed  chan struct{} // closed once Closed
	waiters int
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once
}

func NewClient(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "mpv"
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.MalformedBurst <= 0 {
		opts.MalformedBurst = DefaultMalformedBurst
	}
	if opts.MalformedWindow <= 0 {
		opts.MalformedWindow = DefaultMalformedWindow
	}
	if opts.Properties == nil {
		opts.Properties = ObservedProperties
	}
	if opts.QueueLimit < 0 {
		opts.QueueLimit = 0
	}
	return &Client{
		opts:    opts,
		pending: newCorrelator(),
		state:   Disconnected,
		ready:   make(chan struct{}),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the connection supervisor. It returns immediately; use
// WaitConnected to block until the first connection is usable.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.stopped || c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Close stops the supervisor, fails every pending call with a
// *ConnectionError wrapping ErrClosed and releases the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		cancel := c.cancel
		c.mu.Unlock()

		if cancel == nil {
			c.shutdown()
			close(c.done)
			return
		}
		cancel()
		<-c.done
	})
	return nil
}

// State reports the connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitConnected blocks until the client is Connected, closed, or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, ready, closed := c.state, c.ready, c.closed
		c.mu.Unlock()

		switch state {
		case Connected:
			return nil
		case Closed:
			return &ConnectionError{Op: "wait", Err: ErrClosed}
		}
		select {
		case <-ready:
		case <-closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Call issues cmd with the default timeout and returns the reply data.
func (c *Client) Call(ctx context.Context, cmd Command) (json.RawMessage, error) {
	return c.CallTimeout(ctx, cmd, c.opts.CallTimeout)
}

// CallTimeout issues cmd and waits for its reply. The timeout covers both
// waiting for a connection (when queueing is enabled) and the round trip.
func (c *Client) CallTimeout(ctx context.Context, cmd Command, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.opts.CallTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)

	conn, err := c.acquire(ctx, deadline)
	var data json.RawMessage
	if err == nil {
		data, err = c.roundTrip(ctx, conn, cmd, deadline, timeout)
	}
	monitoring.RecordCommand(cmd.Name(), resultLabel(err), time.Since(start))
	return data, err
}

func resultLabel(err error) string {
	var (
		cmdErr     *CommandError
		timeoutErr *TimeoutError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &cmdErr):
		return "command_error"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	}
	return "connection_error"
}

// acquire returns the live connection, waiting for one only when the
// bounded queue has room.
func (c *Client) acquire(ctx context.Context, deadline time.Time) (Conn, error) {
	c.mu.Lock()
	switch {
	case c.state == Connected:
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	case c.state == Closed:
		c.mu.Unlock()
		return nil, &ConnectionError{Op: "call", Err: ErrClosed}
	case c.waiters >= c.opts.QueueLimit:
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.waiters++
	ready, closed := c.ready, c.closed
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiters--
		c.mu.Unlock()
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for {
		select {
		case <-ready:
			c.mu.Lock()
			if c.state == Connected {
				conn := c.conn
				c.mu.Unlock()
				return conn, nil
			}
			ready = c.ready
			c.mu.Unlock()
		case <-closed:
			return nil, &ConnectionError{Op: "call", Err: ErrClosed}
		case <-timer.C:
			return nil, ErrNotConnected
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, conn Conn, cmd Command, deadline time.Time, timeout time.Duration) (json.RawMessage, error) {
	p := c.pending.register(cmd, deadline)

	line, err := Encode(cmd, p.id)
	if err != nil {
		c.pending.cancel(p.id)
		return nil, err
	}

	log.CtxDebug(ctx, "%s send: %s", c.opts.Name, bytes.TrimSpace(line))
	if err := conn.WriteLine(line); err != nil {
		if !c.pending.cancel(p.id) {
			r := <-p.done
			return r.data, r.err
		}
		// a broken pipe ends the session; the reader notices and reconnects
		_ = conn.Close()
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Op: "write", Err: err}
		}
		return nil, err
	}

	timer := time.NewTimer(time.Until(p.deadline))
	defer timer.Stop()

	select {
	case r := <-p.done:
		return r.data, r.err
	case <-timer.C:
		err = &TimeoutError{Command: cmd.Name(), RequestID: p.id, After: timeout}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if !c.pending.cancel(p.id) {
		// fulfilled concurrently with the timeout: the reply wins
		r := <-p.done
		return r.data, r.err
	}
	return nil, err
}

// transition is the only place the connection state changes.
func (c *Client) transition(to ConnState, conn Conn) bool {
	c.mu.Lock()
	from := c.state
	if !validTransition(from, to) {
		c.mu.Unlock()
		log.Debug("%s: ignoring invalid transition %s -> %s", c.opts.Name, from, to)
		return false
	}
	c.state = to
	switch to {
	case Connected:
		c.conn = conn
		close(c.ready)
	case Closed:
		c.conn = nil
		close(c.closed)
	default:
		c.conn = nil
	}
	if from == Connected {
		c.ready = make(chan struct{})
	}
	c.mu.Unlock()

	monitoring.SetConnectionState(to.String())
	log.Debug("%s: %s -> %s", c.opts.Name, from, to)
	if c.opts.Handler != nil {
		c.opts.Handler.HandleConnState(to)
	}
	return true
}

func (c *Client) shutdown() {
	c.transition(Closed, nil)
	if n := c.pending.failAll(&ConnectionError{Op: "close", Err: ErrClosed}); n > 0 {
		log.Debug("%s: cancelled %d pending requests", c.opts.Name, n)
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.shutdown()

	bo := c.opts.Backoff.newBackOff()
	failures := 0
	for ctx.Err() == nil {
		c.transition(Connecting, nil)

		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		c.transition(Disconnected, nil)
		if n := c.pending.failAll(&ConnectionError{Op: "read", Err: err}); n > 0 {
			log.Debug("%s: failed %d pending requests after disconnect", c.opts.Name, n)
		}

		if established {
			failures = 0
			bo.Reset()
			log.Error("%s: connection lost: %v", c.opts.Name, err)
			if !errors.Is(err, ErrCorruptStream) {
				// the first redial after a drop is immediate
				continue
			}
		} else {
			failures++
			if limit := c.opts.Backoff.MaxAttempts; limit > 0 && failures >= limit {
				log.Error("%s: giving up after %d connection attempts: %v", c.opts.Name, failures, err)
				return
			}
			if failures == 1 {
				log.Error("%s: failed to establish connection: %v", c.opts.Name, err)
			} else {
				log.Debug("%s: connection attempt %d failed: %v", c.opts.Name, failures, err)
			}
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// session dials, re-subscribes the observed properties and then serves the
// connection until it ends. established reports whether it ever became
// Connected.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	conn, err := c.opts.Transport.Dial(ctx)
	monitoring.RecordConnectAttempt(err == nil)
	if err != nil {
		return false, err
	}

	readErr := make(chan error, 1)
	go func() {
		err := c.readLoop(conn)
		// nothing can answer requests on this connection anymore
		fail := &ConnectionError{Op: "read", Err: err}
		if ctx.Err() != nil {
			fail = &ConnectionError{Op: "close", Err: ErrClosed}
		}
		c.pending.failAll(fail)
		readErr <- err
	}()

	if err := c.subscribe(ctx, conn); err != nil {
		_ = conn.Close()
		<-readErr
		return false, err
	}

	if !c.transition(Connected, conn) {
		_ = conn.Close()
		<-readErr
		return false, &ConnectionError{Op: "connect", Err: ErrClosed}
	}
	log.Info("%s: connected", c.opts.Name)

	select {
	case err = <-readErr:
		_ = conn.Close()
	case <-ctx.Done():
		_ = conn.Close()
		<-readErr
		err = ErrClosed
	}
	return true, err
}

func (c *Client) subscribe(ctx context.Context, conn Conn) error {
	for _, p := range c.opts.Properties {
		deadline := time.Now().Add(c.opts.CallTimeout)
		if _, err := c.roundTrip(ctx, conn, p.ObserveCommand(), deadline, c.opts.CallTimeout); err != nil {
			return err
		}
	}
	return nil
}

// readLoop drains conn. It only decodes and dispatches; replies go to the
// correlator and everything else to the handler.
func (c *Client) readLoop(conn Conn) error {
	budget := rate.NewLimiter(rate.Every(c.opts.MalformedWindow/time.Duration(c.opts.MalformedBurst)), c.opts.MalformedBurst)

	for line, err := range readLines(conn) {
		if err != nil {
			return err
		}
		msg, err := Decode(line)
		if err != nil {
			monitoring.RecordProtocolError()
			log.Error("%s: discarding line: %v", c.opts.Name, err)
			if !budget.Allow() {
				return ErrCorruptStream
			}
			continue
		}

		switch m := msg.(type) {
		case Reply:
			if !c.pending.resolve(m) {
				log.Debug("%s: reply for unknown request %d", c.opts.Name, m.RequestID)
			}
		case Event:
			if c.opts.Handler != nil {
				c.opts.Handler.HandleEvent(m)
			}
		}
	}
	return io.EOF
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
