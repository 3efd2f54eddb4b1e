package ipc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/metrics"
	"github.com/autodebug/autodebug/pkg/types"
	"github.com/google/uuid"
)

// Connection owns one accepted socket and its framer
type Connection struct {
	id         string
	conn       net.Conn
	framer     Framer
	dispatcher *Dispatcher
	bufferSize int
	logger     *logger.Logger
	metrics    *metrics.Collector
	createdAt  time.Time

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newConnection(conn net.Conn, d *Dispatcher, bufferSize int, log *logger.Logger, m *metrics.Collector) *Connection {
	id := uuid.NewString()
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Connection{
		id:         id,
		conn:       conn,
		dispatcher: d,
		bufferSize: bufferSize,
		logger:     log.With("conn_id", id),
		metrics:    m,
		createdAt:  time.Now(),
	}
}

// ID returns the connection's unique identifier
func (c *Connection) ID() string {
	return c.id
}

// CreatedAt returns when the connection was accepted
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// serve reads until the socket closes, dispatching each complete frame in
// arrival order. Trailing bytes without a newline are dropped on close.
func (c *Connection) serve(ctx context.Context) {
	defer c.Close()

	buf := make([]byte, c.bufferSize)
	emit := func(msg string) {
		c.metrics.FrameReceived(len(msg))
		c.dispatcher.Dispatch(ctx, msg)
	}

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.framer.Feed(buf[:n], emit)
		}
		if err == nil {
			continue
		}

		if pending := c.framer.Pending(); pending > 0 {
			c.logger.Debug("dropping unterminated frame", "bytes", pending)
		}
		c.framer.Reset()

		if isClosedErr(err) || c.isClosed() {
			c.logger.Debug("connection closed")
			return
		}

		c.metrics.RecordError("transport")
		terr := types.WrapError(types.ErrCodeTransport, "IPC connection error", err)
		c.logger.Warn("connection read failed", "error", err)
		c.dispatcher.report(terr)
		return
	}
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the underlying socket. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}
