package mpv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	unix := Endpoint{Path: "/tmp/mpvsocket"}
	assert.Equal(t, "unix", unix.Network())
	assert.Equal(t, "/tmp/mpvsocket", unix.Address())
	assert.NoError(t, unix.Validate())

	tcp := Endpoint{Host: "192.168.1.20", Port: 9001}
	assert.Equal(t, "tcp", tcp.Network())
	assert.Equal(t, "192.168.1.20:9001", tcp.Address())
	assert.Equal(t, "tcp://192.168.1.20:9001", tcp.String())
	assert.NoError(t, tcp.Validate())

	assert.Error(t, Endpoint{}.Validate())
	assert.Error(t, Endpoint{Path: "/tmp/s", Host: "h", Port: 1}.Validate())
	assert.Error(t, Endpoint{Host: "h"}.Validate())
}

func TestTransportMissingSocket(t *testing.T) {
	tr := NewTransport(Endpoint{Path: filepath.Join(t.TempDir(), "absent.sock")}, time.Second, time.Second)
	_, err := tr.Dial(context.Background())

	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "dial", cerr.Op)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestTransportUnixRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpv.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		line, _ := bufio.NewReader(c).ReadString('\n')
		got <- line
		_, _ = c.Write([]byte("{\"a\":1}\n\n\r\n{\"b\":2}\n{\"trailing\""))
	}()

	conn, err := NewTransport(Endpoint{Path: path}, time.Second, time.Second).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteLine([]byte("{\"command\":[\"stop\"],\"request_id\":1}\n")))
	assert.Equal(t, "{\"command\":[\"stop\"],\"request_id\":1}\n", <-got)

	var lines []string
	var last error
	for line, err := range readLines(conn) {
		if err != nil {
			last = err
			break
		}
		lines = append(lines, string(line))
	}
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines)
	assert.True(t, errors.Is(last, io.ErrUnexpectedEOF), "got %v", last)
}

func TestTransportTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			_, _ = c.Write([]byte("{\"event\":\"idle\"}\n"))
			c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn, err := NewTransport(Endpoint{Host: "127.0.0.1", Port: addr.Port}, time.Second, time.Second).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"idle"}`, string(line))
	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLineTooLong(t *testing.T) {
	server, client := net.Pipe()
	conn := newConn(client, 0)
	defer conn.Close()

	go func() {
		defer server.Close()
		if _, err := server.Write([]byte("{\"event\":\"idle\"}\n")); err != nil {
			return
		}
		chunk := bytes.Repeat([]byte("x"), 64<<10)
		for written := 0; written <= MaxLineLength; written += len(chunk) {
			if _, err := server.Write(chunk); err != nil {
				return
			}
		}
	}()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"idle"}`, string(line))

	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, ErrCorruptStream)
}
