// Package ipc implements the local control endpoint that lets processes
// started from an editor terminal ask the host to begin a debug session.
//
// The Server binds a platform handle derived from a context string:
//
//   - Windows: a named pipe \\.\pipe\<app>-<id>-sock
//   - Unix with XDG_RUNTIME_DIR (not macOS): $XDG_RUNTIME_DIR/<app>-<id>.sock
//   - otherwise: <tmp>/<app>-<id>.sock
//
// where <id> is the first ten hex characters of SHA-1(context). The same
// context always maps to the same handle, so a restarted instance replaces
// the previous socket.
//
// Clients write newline-delimited JSON objects. Each complete line is parsed
// and passed unchanged to the Launcher; the server never replies. A line that
// is not a JSON object is reported and skipped without closing the
// connection. There is no escaping or length prefix, so a raw newline inside
// a payload splits it into two frames. Client.Send avoids this by encoding
// with encoding/json.
//
// Example usage:
//
//	srv, err := ipc.New(ctx, ipc.Options{
//	    Context:  workspaceDir,
//	    Launcher: ipc.LauncherFunc(startSession),
//	})
//	if err != nil {
//	    return err // BIND: the feature is unavailable for this session
//	}
//	defer srv.Close()
//
//	env := srv.GetTerminalEnv() // {"AUTODEBUG_IPC_HANDLE": srv.HandlePath()}
package ipc
