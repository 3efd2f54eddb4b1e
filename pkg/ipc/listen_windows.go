//go:build windows

package ipc

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/Microsoft/go-winio"
)

const pipeBufferSize = 65536

// listen creates a named pipe restricted to the creator/owner
func listen(_ context.Context, h HandleDescriptor) (net.Listener, error) {
	return winio.ListenPipe(h.Path, &winio.PipeConfig{
		SecurityDescriptor: "",
		InputBufferSize:    pipeBufferSize,
		OutputBufferSize:   pipeBufferSize,
	})
}

// removeStale is a no-op; the OS reclaims named pipes
func removeStale(HandleDescriptor) error {
	return nil
}

// dial connects to a named pipe handle
func dial(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, winio.ErrFileClosed) ||
		errors.Is(err, winio.ErrPipeListenerClosed)
}
