package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/sysgio/sysg/internal/sysgerr"
)

// ErrNotAvailable is returned when the control socket doesn't exist or
// refuses connections; callers (the CLI) fall back to a disk snapshot
// per spec.md §6.
var ErrNotAvailable = errors.New("control socket not available")

// Client is a short-lived connection to one control socket, used by the
// CLI for a single request/response round trip.
type Client struct {
	conn net.Conn
}

// Dial connects to path with a short timeout; a missing or refused
// socket is reported as ErrNotAvailable rather than the raw net error.
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, ErrNotAvailable
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Call sends req and waits for the single-line response.
func (c *Client) Call(req Request, timeout time.Duration) (Response, error) {
	c.conn.SetDeadline(time.Now().Add(timeout))

	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	line = append(line, '\n')
	if _, err := c.conn.Write(line); err != nil {
		return Response{}, &sysgerr.ControlError{Op: "write", Err: err}
	}

	reader := bufio.NewReaderSize(c.conn, MaxFrameBytes)
	respLine, err := reader.ReadBytes('\n')
	if err != nil && len(respLine) == 0 {
		return Response{}, &sysgerr.ControlError{Op: "read", Err: err}
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return Response{}, &sysgerr.ControlError{Op: "decode", Err: err}
	}
	return resp, nil
}
