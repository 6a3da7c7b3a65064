package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	nomos "github.com/misaret/nomos-go"
	"github.com/misaret/nomos-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	s, err := server.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Shutdown()
	})
	return s, s.Addr().String()
}

func TestPutGetDelete(t *testing.T) {
	s, addr := startServer(t)

	out, err := run(t, "--servers", addr, "put", "1", "1", "user:42:profile", "hello", "--expire", "1m")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	ttl, found := s.Memory().TTL(1, 1, nomos.CanonicalKey("user:42:profile"))
	require.True(t, found)
	assert.Greater(t, ttl, 50*time.Second)

	out, err = run(t, "--servers", addr, "get", "1", "1", "user:42:profile")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = run(t, "--servers", addr, "delete", "1", "1", "user:42:profile")
	require.NoError(t, err)

	_, err = run(t, "--servers", addr, "get", "1", "1", "user:42:profile")
	assert.ErrorIs(t, err, errNotFound)
}

func TestSubSecondExpireRoundsUp(t *testing.T) {
	assert.Equal(t, 0, durationSeconds(0))
	assert.Equal(t, 1, durationSeconds(500*time.Millisecond))
	assert.Equal(t, 1, durationSeconds(time.Second))
	assert.Equal(t, 2, durationSeconds(1500*time.Millisecond))

	s, addr := startServer(t)
	_, err := run(t, "--servers", addr, "put", "0", "0", "k", "v", "--expire", "500ms")
	require.NoError(t, err)
	ttl, found := s.Memory().TTL(0, 0, "k")
	require.True(t, found)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestBadArguments(t *testing.T) {
	_, addr := startServer(t)

	_, err := run(t, "--servers", addr, "get", "x", "1", "k")
	assert.Error(t, err)
	_, err = run(t, "--servers", addr, "get", "1", "1")
	assert.Error(t, err)
	_, err = run(t, "--servers", "no-port", "get", "1", "1", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid endpoint")
}

func TestPing(t *testing.T) {
	_, addr := startServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := l.Addr().String()
	require.NoError(t, l.Close())

	out, err := run(t, "--servers", addr, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, addr+"\tUP")

	out, err = run(t, "--servers", addr+","+dead, "--timeout", "200ms", "ping")
	assert.Error(t, err)
	assert.Contains(t, out, dead+"\tDOWN")
}

func TestRoute(t *testing.T) {
	out, err := run(t, "--servers", "h1:14301,h2:14302", "route", "1", "1", "user:42:profile", "abc123")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "user:42:profile\t3d9c940ae8897867\th"))
	assert.True(t, strings.HasPrefix(lines[1], "abc123\tabc123\th"))
}

func TestConfigFile(t *testing.T) {
	_, addr := startServer(t)
	path := t.TempDir() + "/nomos.yaml"
	require.NoError(t, os.WriteFile(path, []byte("servers: [\""+addr+"\"]\n"), 0o600))

	_, err := run(t, "--config", path, "put", "0", "0", "k", "v")
	require.NoError(t, err)
	out, err := run(t, "--config", path, "get", "0", "0", "k")
	require.NoError(t, err)
	assert.Equal(t, "v\n", out)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"serve", "--listen", "127.0.0.1:0", "--sweep", "0"})

	done := make(chan error, 1)
	go func() {
		done <- root.ExecuteContext(ctx)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := startServer(t)
	s.Memory().Put(0, 0, "k", []byte("v"), 0)

	metrics := newMetricsServer("127.0.0.1:0", s)
	rec := httptest.NewRecorder()
	metrics.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nomos_server_entries 1")
}
