//go:build !windows

package ipc

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
)

// listen binds a unix socket. The server removes the file itself on close,
// after checking it still owns it.
func listen(ctx context.Context, h HandleDescriptor) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "unix", h.Path)
	if err != nil {
		return nil, err
	}
	if ul, ok := l.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	return l, nil
}

// removeStale deletes a socket left behind by a crashed instance
func removeStale(h HandleDescriptor) error {
	if h.Kind != UnixSocket {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// dial connects to a unix socket handle
func dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
