package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/autodebug/autodebug/pkg/types"
)

// Client writes frames to a running server. The protocol has no replies.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to the server listening on path
func Dial(ctx context.Context, path string) (*Client, error) {
	if path == "" {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "IPC handle path is empty")
	}
	conn, err := dial(ctx, path)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeUnavailable, "failed to connect to "+path, err)
	}
	return &Client{conn: conn}, nil
}

// Send encodes v as JSON and writes it as one frame. json.Marshal escapes
// newlines inside strings, so the frame cannot be split by its own content.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return types.WrapError(types.ErrCodeInvalidArgument, "failed to encode frame", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes data followed by a newline. data must not contain a newline.
func (c *Client) SendRaw(data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "frame must not contain a newline")
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return types.WrapError(types.ErrCodeTransport, "failed to write frame", err)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send dials path, writes each value as a frame, and closes the connection
func Send(ctx context.Context, path string, values ...any) error {
	c, err := Dial(ctx, path)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, v := range values {
		if err := c.Send(v); err != nil {
			return err
		}
	}
	return nil
}
