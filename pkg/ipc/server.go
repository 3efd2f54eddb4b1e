package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/autodebug/autodebug/internal/config"
	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/metrics"
	"github.com/autodebug/autodebug/pkg/types"
	"github.com/gofrs/flock"
)

const (
	lockSuffix       = ".lock"
	lockRetryDelay   = 25 * time.Millisecond
	acceptRetryDelay = 100 * time.Millisecond
)

// Options configures a Server
type Options struct {
	// Context is hashed into the handle path. Empty yields a random path.
	Context        string
	AppName        string
	EnvVar         string
	ReadBufferSize int
	BindTimeout    time.Duration

	Launcher Launcher
	Reporter ErrorReporter
	Logger   *logger.Logger
	Metrics  *metrics.Collector

	// Resolver overrides platform detection, mainly for tests
	Resolver *Resolver
}

// OptionsFromConfig builds server options from the IPC configuration section
func OptionsFromConfig(cfg config.IPCConfig) Options {
	return Options{
		Context:        cfg.Context,
		AppName:        cfg.AppName,
		EnvVar:         cfg.EnvVar,
		ReadBufferSize: cfg.ReadBufferSize,
		BindTimeout:    cfg.BindTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.AppName == "" {
		o.AppName = config.DefaultAppName
	}
	if o.EnvVar == "" {
		o.EnvVar = config.DefaultHandleEnvVar
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = config.DefaultReadBufferSize
	}
	if o.BindTimeout <= 0 {
		o.BindTimeout = config.DefaultBindTimeout
	}
	if o.Logger == nil {
		o.Logger = logger.Global()
	}
	return o
}

// Server listens on a local socket and dispatches newline-delimited JSON
// requests from every connection to a Launcher
type Server struct {
	handle     HandleDescriptor
	envVar     string
	listener   net.Listener
	owned      os.FileInfo
	dispatcher *Dispatcher
	bufferSize int
	logger     *logger.Logger
	metrics    *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	conns    map[string]*Connection
	accepted uint64
	closed   bool
	wg       sync.WaitGroup
}

// Stats is a point-in-time view of the server
type Stats struct {
	HandlePath        string       `json:"handle_path"`
	Kind              PlatformKind `json:"kind"`
	ActiveConnections int          `json:"active_connections"`
	TotalAccepted     uint64       `json:"total_accepted"`
	Closed            bool         `json:"closed"`
}

// New resolves the handle, binds it, and starts accepting connections.
// Any failure to bind is returned as a BIND error and nothing is retried.
func New(ctx context.Context, opts Options) (*Server, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("component", "ipc_server")
	start := time.Now()

	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(opts.AppName, opts.Logger)
	}
	handle, err := resolver.Resolve(opts.Context)
	if err != nil {
		opts.Metrics.RecordError("bind")
		return nil, types.WrapError(types.ErrCodeBind, "failed to resolve IPC handle", err)
	}

	bindCtx, cancelBind := context.WithTimeout(ctx, opts.BindTimeout)
	defer cancelBind()

	listener, owned, err := bind(bindCtx, handle, log)
	if err != nil {
		opts.Metrics.RecordError("bind")
		return nil, types.WrapError(types.ErrCodeBind, "failed to listen on "+handle.Path, err)
	}
	opts.Metrics.ObserveBind(time.Since(start))

	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Server{
		handle:     handle,
		envVar:     opts.EnvVar,
		listener:   listener,
		owned:      owned,
		dispatcher: NewDispatcher(opts.Launcher, opts.Reporter, opts.Logger, opts.Metrics),
		bufferSize: opts.ReadBufferSize,
		logger:     log.With("handle", handle.Path),
		metrics:    opts.Metrics,
		ctx:        serveCtx,
		cancel:     cancel,
		conns:      make(map[string]*Connection),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("IPC server listening",
		"kind", handle.Kind.String(),
		"env_var", opts.EnvVar,
		"buffer_size", opts.ReadBufferSize)

	return s, nil
}

// bind serializes stale-socket removal and listen across processes sharing
// the same handle, using a lock file next to the socket
func bind(ctx context.Context, h HandleDescriptor, log *logger.Logger) (net.Listener, os.FileInfo, error) {
	if h.Kind == NamedPipe {
		l, err := listen(ctx, h)
		return l, nil, err
	}

	lock := flock.New(h.Path + lockSuffix)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire bind lock: %w", err)
	}
	if !locked {
		return nil, nil, errors.New("bind lock is held by another process")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release bind lock", "path", lock.Path(), "error", err)
		}
	}()

	if err := removeStale(h); err != nil {
		log.Debug("Could not remove stale socket", "path", h.Path, "error", err)
	}

	l, err := listen(ctx, h)
	if err != nil {
		return nil, nil, err
	}

	owned, err := os.Stat(h.Path)
	if err != nil {
		owned = nil
	}
	return l, owned, nil
}

// HandlePath returns the bound address
func (s *Server) HandlePath() string {
	return s.handle.Path
}

// Handle returns the bound handle descriptor
func (s *Server) Handle() HandleDescriptor {
	return s.handle
}

// GetTerminalEnv returns the single environment entry that publishes the handle
func (s *Server) GetTerminalEnv() map[string]string {
	return map[string]string{s.envVar: s.handle.Path}
}

// ConnectionCount returns the number of live connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Stats returns server statistics
func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		HandlePath:        s.handle.Path,
		Kind:              s.handle.Kind,
		ActiveConnections: len(s.conns),
		TotalAccepted:     s.accepted,
		Closed:            s.closed,
	}
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// acceptLoop accepts connections until the listener is closed
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || isClosedErr(err) {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		s.track(conn)
	}
}

// track adds a connection to the live set and starts serving it
func (s *Server) track(netConn net.Conn) {
	c := newConnection(netConn, s.dispatcher, s.bufferSize, s.logger, s.metrics)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		netConn.Close()
		return
	}
	s.conns[c.id] = c
	s.accepted++
	count := len(s.conns)
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.ConnectionOpened()
	s.logger.Debug("Connection accepted", "conn_id", c.id, "conn_count", count)

	go func() {
		defer s.wg.Done()
		c.serve(s.ctx)
		s.untrack(c)
	}()
}

// untrack drops a closed connection from the live set
func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	count := len(s.conns)
	s.mu.Unlock()

	if ok {
		s.metrics.ConnectionClosed()
		s.logger.Debug("Connection closed", "conn_id", c.id, "conn_count", count)
	}
}

// Close stops accepting, closes every connection, and removes the socket
// file. Calls after the first are no-ops, and a missing file is not an error.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()

	if err := s.listener.Close(); err != nil && !isClosedErr(err) {
		s.logger.Warn("Failed to close listener", "error", err)
	}
	for _, c := range conns {
		if err := c.Close(); err != nil && !isClosedErr(err) {
			s.logger.Debug("Failed to close connection", "conn_id", c.id, "error", err)
		}
	}

	s.wg.Wait()

	s.removeHandle()

	s.logger.Info("IPC server closed")
	return nil
}

// removeHandle deletes the socket file unless another instance has
// replaced it since we bound
func (s *Server) removeHandle() {
	if s.handle.Kind != UnixSocket {
		return
	}

	fi, err := os.Stat(s.handle.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		s.logger.Debug("Failed to stat socket file", "error", err)
	case s.owned != nil && !os.SameFile(fi, s.owned):
		s.logger.Info("Socket file was replaced by another instance, leaving it in place")
	default:
		if err := os.Remove(s.handle.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove socket file", "error", err)
		}
	}

	lock := flock.New(s.handle.Path + lockSuffix)
	if locked, err := lock.TryLock(); err == nil && locked {
		if err := os.Remove(lock.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("Failed to remove bind lock file", "error", err)
		}
		lock.Unlock()
	}
}
