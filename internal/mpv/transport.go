package mpv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// Endpoint addresses an mpv IPC socket: either a unix socket path or a TCP
// host/port exposed by a relay.
type Endpoint struct {
	Path string
	Host string
	Port int
}

func (e Endpoint) Network() string {
	if e.Host != "" {
		return "tcp"
	}
	return "unix"
}

func (e Endpoint) Address() string {
	if e.Host != "" {
		return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	}
	return e.Path
}

func (e Endpoint) String() string { return e.Network() + "://" + e.Address() }

// Validate checks that exactly one addressing form is set.
func (e Endpoint) Validate() error {
	switch {
	case e.Host != "" && e.Path != "":
		return errors.New("mpv endpoint: set either a socket path or host+port, not both")
	case e.Host != "":
		if e.Port < 1 || e.Port > 65535 {
			return fmt.Errorf("mpv endpoint: invalid port %d", e.Port)
		}
	case e.Path == "":
		return errors.New("mpv endpoint: socket path is empty")
	}
	return nil
}

// Transport opens connections to mpv.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one live IPC connection.
type Conn interface {
	WriteLine(line []byte) error
	ReadLine() ([]byte, error)
	Close() error
}

// NewTransport returns a socket transport for ep.
func NewTransport(ep Endpoint, dialTimeout, writeTimeout time.Duration) Transport {
	return &netTransport{endpoint: ep, dialTimeout: dialTimeout, writeTimeout: writeTimeout}
}

type netTransport struct {
	endpoint     Endpoint
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

func (t *netTransport) Dial(ctx context.Context) (Conn, error) {
	if err := t.endpoint.Validate(); err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	if t.endpoint.Network() == "unix" {
		if _, err := os.Stat(t.endpoint.Path); err != nil {
			return nil, &ConnectionError{Op: "dial", Err: err}
		}
	}

	d := net.Dialer{Timeout: t.dialTimeout}
	c, err := d.DialContext(ctx, t.endpoint.Network(), t.endpoint.Address())
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	return newConn(c, t.writeTimeout), nil
}

// MaxLineLength bounds one IPC line. Large playlists make long replies, but a
// peer that never sends a newline must not grow the buffer forever.
const MaxLineLength = 16 << 20

type netConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeTimeout time.Duration

	wmu sync.Mutex
}

func newConn(c net.Conn, writeTimeout time.Duration) *netConn {
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 64<<10), MaxLineLength)
	sc.Split(splitLines)
	return &netConn{conn: c, scanner: sc, writeTimeout: writeTimeout}
}

// splitLines is bufio.ScanLines without the lenient end of stream:
// unterminated trailing data is an error.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return 0, nil, nil
}

func (c *netConn) WriteLine(line []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(line); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// ReadLine returns the next line without its terminator. A line longer than
// MaxLineLength fails with ErrCorruptStream.
func (c *netConn) ReadLine() ([]byte, error) {
	if c.scanner.Scan() {
		return bytes.Clone(c.scanner.Bytes()), nil
	}
	err := c.scanner.Err()
	switch {
	case err == nil:
		return nil, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrCorruptStream, MaxLineLength)
	}
	return nil, err
}

func (c *netConn) Close() error { return c.conn.Close() }

// readLines yields every non-empty line of conn. The sequence ends with
// exactly one error: io.EOF on a clean end of stream, or the read failure.
func readLines(conn Conn) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			line, err := conn.ReadLine()
			if err != nil {
				yield(nil, err)
				return
			}
			if len(line) == 0 || (len(line) == 1 && line[0] == '\r') {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}
