//go:build !windows

package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autodebug/autodebug/internal/config"
	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/metrics"
	"github.com/autodebug/autodebug/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runtimeDir returns a short directory for sockets; t.TempDir can exceed
// the unix socket path limit on some systems
func runtimeDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "adbg")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// createTestServer starts a server whose handle lives in dir
func createTestServer(t *testing.T, dir, handleContext string, rec *recorder, m *metrics.Collector) *Server {
	t.Helper()

	log := testLogger(t)
	resolver := fakeResolver("linux", map[string]string{"XDG_RUNTIME_DIR": dir}, dir)
	resolver.logger = log

	srv, err := New(context.Background(), Options{
		Context:  handleContext,
		Launcher: rec,
		Reporter: rec,
		Logger:   log,
		Metrics:  m,
		Resolver: resolver,
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dialTest(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitLaunch(t *testing.T, rec *recorder) types.LaunchRequest {
	t.Helper()
	select {
	case req := <-rec.notify:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for launch")
		return nil
	}
}

func TestServerEndToEnd(t *testing.T) {
	dir := runtimeDir(t)
	rec := newRecorder()
	srv := createTestServer(t, dir, "abc", rec, nil)

	wantPath := filepath.Join(dir, "autodebug-a9993e3647.sock")
	assert.Equal(t, wantPath, srv.HandlePath())
	assert.Equal(t, UnixSocket, srv.Handle().Kind)
	assert.Equal(t, map[string]string{"AUTODEBUG_IPC_HANDLE": wantPath}, srv.GetTerminalEnv())

	conn := dialTest(t, srv.HandlePath())
	_, err := conn.Write([]byte("{\"type\":\"launch\",\"name\":\"x\"}\n"))
	require.NoError(t, err)

	assert.Equal(t, types.LaunchRequest{"type": "launch", "name": "x"}, waitLaunch(t, rec))

	select {
	case extra := <-rec.notify:
		t.Fatalf("unexpected second launch: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, rec.Launches(), 1)
}

func TestServerMalformedFrameIsolation(t *testing.T) {
	dir := runtimeDir(t)
	rec := newRecorder()
	m := metrics.NewCollector()
	srv := createTestServer(t, dir, "malformed", rec, m)

	conn := dialTest(t, srv.HandlePath())
	_, err := conn.Write([]byte("this is not json\n{\"type\":\"launch\",\"n\":1}\n"))
	require.NoError(t, err)

	assert.Equal(t, types.LaunchRequest{"type": "launch", "n": json.Number("1")}, waitLaunch(t, rec))

	// The connection stays usable after the bad frame
	_, err = conn.Write([]byte("{\"type\":\"attach\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, types.LaunchRequest{"type": "attach"}, waitLaunch(t, rec))

	assert.Len(t, rec.Launches(), 2)
	require.Len(t, rec.Errors(), 1)
	assert.True(t, types.IsErrCode(rec.Errors()[0], types.ErrCodeParse))
	assert.Equal(t, 1, srv.ConnectionCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("parse")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.FramesTotal))
}

func TestServerConnectionsAreIndependent(t *testing.T) {
	dir := runtimeDir(t)
	rec := newRecorder()
	srv := createTestServer(t, dir, "multi", rec, nil)

	a := dialTest(t, srv.HandlePath())
	b := dialTest(t, srv.HandlePath())

	writes := []struct {
		conn net.Conn
		data string
	}{
		{a, `{"from":"a",`},
		{b, `{"from":"b",`},
		{a, `"seq":1}`},
		{b, `"seq":2}`},
		{b, "\n"},
		{a, "\n"},
	}
	for _, w := range writes {
		_, err := w.conn.Write([]byte(w.data))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	got := map[any]types.LaunchRequest{}
	for i := 0; i < 2; i++ {
		req := waitLaunch(t, rec)
		got[req["from"]] = req
	}

	assert.Equal(t, types.LaunchRequest{"from": "a", "seq": json.Number("1")}, got["a"])
	assert.Equal(t, types.LaunchRequest{"from": "b", "seq": json.Number("2")}, got["b"])
}

func TestServerPreservesOrderWithinConnection(t *testing.T) {
	dir := runtimeDir(t)
	rec := newRecorder()
	srv := createTestServer(t, dir, "order", rec, nil)

	client, err := Dial(context.Background(), srv.HandlePath())
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, client.Send(map[string]int{"seq": i}))
	}
	for i := 0; i < 20; i++ {
		req := waitLaunch(t, rec)
		assert.Equal(t, json.Number(jsonInt(i)), req["seq"])
	}
}

func jsonInt(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func TestServerDropsUnterminatedTrailingData(t *testing.T) {
	dir := runtimeDir(t)
	rec := newRecorder()
	srv := createTestServer(t, dir, "trailing", rec, nil)

	conn, err := net.Dial("unix", srv.HandlePath())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err = conn.Write([]byte(`{"type":"launch"}`))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, rec.Launches())
	assert.Empty(t, rec.Errors(), "a peer closing is not a transport error")
}

func TestServerCloseIsIdempotent(t *testing.T) {
	dir := runtimeDir(t)
	rec := newRecorder()
	m := metrics.NewCollector()
	srv := createTestServer(t, dir, "dispose", rec, m)
	path := srv.HandlePath()

	conn := dialTest(t, path)
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+lockSuffix)
	assert.Equal(t, 0, srv.ConnectionCount())
	assert.True(t, srv.Stats().Closed)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionsActive))

	// The server side of the existing connection was closed
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)

	_, err = net.Dial("unix", path)
	assert.Error(t, err, "no connections are accepted after close")
}

func TestServerRemovesStaleSocket(t *testing.T) {
	dir := runtimeDir(t)
	stale := filepath.Join(dir, "autodebug-"+HandleID([]byte("stale"))+".sock")
	require.NoError(t, os.WriteFile(stale, []byte("left over"), 0600))

	rec := newRecorder()
	srv := createTestServer(t, dir, "stale", rec, nil)
	assert.Equal(t, stale, srv.HandlePath())

	conn := dialTest(t, srv.HandlePath())
	_, err := conn.Write([]byte("{\"ok\":true}\n"))
	require.NoError(t, err)
	assert.Equal(t, types.LaunchRequest{"ok": true}, waitLaunch(t, rec))
}

func TestServerSameContextReplacesPrevious(t *testing.T) {
	dir := runtimeDir(t)
	first := createTestServer(t, dir, "shared", newRecorder(), nil)

	rec := newRecorder()
	second := createTestServer(t, dir, "shared", rec, nil)
	require.Equal(t, first.HandlePath(), second.HandlePath())

	// Closing the replaced instance must leave the new socket alone
	require.NoError(t, first.Close())
	assert.FileExists(t, second.HandlePath())

	conn := dialTest(t, second.HandlePath())
	_, err := conn.Write([]byte("{\"to\":\"second\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, types.LaunchRequest{"to": "second"}, waitLaunch(t, rec))
}

func TestServerBindError(t *testing.T) {
	missing := filepath.Join(runtimeDir(t), "does", "not", "exist")
	resolver := fakeResolver("linux", map[string]string{"XDG_RUNTIME_DIR": missing}, missing)
	m := metrics.NewCollector()

	srv, err := New(context.Background(), Options{
		Context:  "abc",
		Logger:   testLogger(t),
		Metrics:  m,
		Resolver: resolver,
	})
	require.Error(t, err)
	assert.Nil(t, srv)
	assert.True(t, types.IsErrCode(err, types.ErrCodeBind))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("bind")))
}

func TestServerStats(t *testing.T) {
	dir := runtimeDir(t)
	srv := createTestServer(t, dir, "stats", newRecorder(), nil)

	dialTest(t, srv.HandlePath())
	dialTest(t, srv.HandlePath())
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	stats := srv.Stats()
	assert.Equal(t, srv.HandlePath(), stats.HandlePath)
	assert.Equal(t, UnixSocket, stats.Kind)
	assert.Equal(t, 2, stats.ActiveConnections)
	assert.Equal(t, uint64(2), stats.TotalAccepted)
	assert.False(t, stats.Closed)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultIPCConfig()
	cfg.Context = "/work"
	cfg.EnvVar = "CUSTOM_HANDLE"

	opts := OptionsFromConfig(cfg).withDefaults()
	assert.Equal(t, "/work", opts.Context)
	assert.Equal(t, "CUSTOM_HANDLE", opts.EnvVar)
	assert.Equal(t, config.DefaultAppName, opts.AppName)
	assert.Equal(t, config.DefaultReadBufferSize, opts.ReadBufferSize)
	assert.NotNil(t, opts.Logger)
}
