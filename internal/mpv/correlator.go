package mpv

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

type result struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	id       int64
	cmd      Command
	deadline time.Time
	done     chan result // buffered(1), written once by whoever removes the entry
}

// correlator owns the pending-request table. An entry is fulfilled exactly
// once: by resolve, cancel or failAll, whichever removes it first.
type correlator struct {
	mu      sync.Mutex
	lastID  int64
	pending map[int64]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[int64]*pendingRequest)}
}

func (c *correlator) register(cmd Command, deadline time.Time) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID()
	p := &pendingRequest{id: id, cmd: cmd, deadline: deadline, done: make(chan result, 1)}
	c.pending[id] = p
	return p
}

// nextID must be called with mu held.
func (c *correlator) nextID() int64 {
	for {
		if c.lastID == math.MaxInt64 {
			c.lastID = 0
		}
		c.lastID++
		if _, busy := c.pending[c.lastID]; !busy {
			return c.lastID
		}
	}
}

func (c *correlator) take(id int64) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p, ok
}

// resolve fulfils the request matching r. It reports false for replies
// nobody is waiting for (late replies of timed out requests).
func (c *correlator) resolve(r Reply) bool {
	p, ok := c.take(r.RequestID)
	if !ok {
		return false
	}
	if err := r.Err(p.cmd.Name()); err != nil {
		p.done <- result{err: err}
	} else {
		p.done <- result{data: r.Data}
	}
	return true
}

// cancel removes id without fulfilling it. It reports false when the entry
// was already taken, in which case a result is (or will be) in done.
func (c *correlator) cancel(id int64) bool {
	_, ok := c.take(id)
	return ok
}

func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	taken := c.pending
	c.pending = make(map[int64]*pendingRequest)
	c.mu.Unlock()

	for _, p := range taken {
		p.done <- result{err: err}
	}
	return len(taken)
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
