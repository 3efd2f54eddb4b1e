package ipc

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/types"
)

// PlatformKind identifies the transport family of a handle
type PlatformKind int

const (
	// UnixSocket is a filesystem socket removed by the server on close
	UnixSocket PlatformKind = iota
	// NamedPipe is a Windows named pipe reclaimed by the OS
	NamedPipe
)

// String returns the string representation of the platform kind
func (k PlatformKind) String() string {
	switch k {
	case NamedPipe:
		return "named_pipe"
	case UnixSocket:
		return "unix_socket"
	default:
		return "unknown"
	}
}

// HandleDescriptor is the resolved address the server binds
type HandleDescriptor struct {
	Path string
	Kind PlatformKind
}

const (
	// idLength is the number of hex digest characters kept in the handle name
	idLength = 10
	// anonymousSeedSize is the number of random bytes hashed when no context is supplied
	anonymousSeedSize = 20

	pipePrefix = `\\.\pipe\`
)

// Resolver derives handle paths. The zero-valued hooks fall back to the
// running process's platform, environment, and crypto/rand.
type Resolver struct {
	AppName string
	GOOS    string
	Getenv  func(string) string
	TempDir func() string
	Rand    io.Reader

	logger *logger.Logger
}

// NewResolver creates a resolver for the running platform
func NewResolver(appName string, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Global()
	}
	return &Resolver{
		AppName: appName,
		GOOS:    runtime.GOOS,
		Getenv:  os.Getenv,
		TempDir: os.TempDir,
		Rand:    rand.Reader,
		logger:  log.With("component", "ipc_resolver"),
	}
}

// Resolve builds the handle for handleContext. An empty context hashes
// random bytes, so the path differs on every call.
func (r *Resolver) Resolve(handleContext string) (HandleDescriptor, error) {
	seed := []byte(handleContext)
	if handleContext == "" {
		seed = make([]byte, anonymousSeedSize)
		if _, err := io.ReadFull(r.random(), seed); err != nil {
			return HandleDescriptor{}, types.WrapError(types.ErrCodeInternal, "failed to generate handle seed", err)
		}
		if r.logger != nil {
			r.logger.Warn("no IPC context supplied, handle path will change on every start")
		}
	}

	id := HandleID(seed)

	if r.goos() == "windows" {
		return HandleDescriptor{
			Path: pipePrefix + r.AppName + "-" + id + "-sock",
			Kind: NamedPipe,
		}, nil
	}

	dir := ""
	if r.goos() != "darwin" {
		dir = r.getenv("XDG_RUNTIME_DIR")
	}
	if dir == "" {
		dir = r.tempDir()
	}

	return HandleDescriptor{
		Path: filepath.Join(dir, r.AppName+"-"+id+".sock"),
		Kind: UnixSocket,
	}, nil
}

// HandleID returns the first ten hex characters of the SHA-1 digest of seed
func HandleID(seed []byte) string {
	sum := sha1.Sum(seed)
	return hex.EncodeToString(sum[:])[:idLength]
}

func (r *Resolver) goos() string {
	if r.GOOS == "" {
		return runtime.GOOS
	}
	return r.GOOS
}

func (r *Resolver) getenv(key string) string {
	if r.Getenv == nil {
		return os.Getenv(key)
	}
	return r.Getenv(key)
}

func (r *Resolver) tempDir() string {
	if r.TempDir == nil {
		return os.TempDir()
	}
	return r.TempDir()
}

func (r *Resolver) random() io.Reader {
	if r.Rand == nil {
		return rand.Reader
	}
	return r.Rand
}
