package ipc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "control.sock")

	var gotReq Request
	srv, err := Listen(sock, func(req Request) Response {
		gotReq = req
		return OkResponse()
	}, nil)
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Close()

	c, err := Dial(sock, time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call(Request{Tag: ReqStart, Service: "web"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, RespOk, resp.Tag)
	require.Equal(t, ReqStart, gotReq.Tag)
	require.Equal(t, "web", gotReq.Service)
}

func TestServeErrorResponse(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "control.sock")

	srv, err := Listen(sock, func(req Request) Response {
		return ErrorResponse(errBoom)
	}, nil)
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Close()

	c, err := Dial(sock, time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call(Request{Tag: ReqStop}, time.Second)
	require.NoError(t, err)
	require.Equal(t, RespError, resp.Tag)
	require.Equal(t, errBoom.Error(), resp.Error)
}

func TestDialNotAvailable(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "nonexistent.sock")
	_, err := Dial(sock, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNotAvailable)
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
