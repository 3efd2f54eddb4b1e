// Package launcher provides a stand-in launch collaborator that records each
// request as one JSON line, for use by the CLI and by tooling that tails it.
package launcher

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/autodebug/autodebug/internal/logger"
	"github.com/autodebug/autodebug/pkg/types"
)

// Event is one written line
type Event struct {
	Time    time.Time           `json:"time"`
	Type    string              `json:"type,omitempty"`
	Request types.LaunchRequest `json:"request"`
}

// JSONLines writes every launch request to w as a JSON object per line
type JSONLines struct {
	mu     sync.Mutex
	enc    *json.Encoder
	count  int
	logger *logger.Logger
	now    func() time.Time
}

// NewJSONLines creates a launcher writing to w
func NewJSONLines(w io.Writer, log *logger.Logger) *JSONLines {
	if log == nil {
		log = logger.Global()
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLines{
		enc:    enc,
		logger: log.With("component", "launcher"),
		now:    time.Now,
	}
}

// Launch writes req. Write failures are logged; the server never sees them.
func (l *JSONLines) Launch(_ context.Context, req types.LaunchRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{Time: l.now().UTC(), Type: req.Type(), Request: req}
	if err := l.enc.Encode(ev); err != nil {
		l.logger.Error("Failed to write launch request", "error", err)
		return
	}
	l.count++
	l.logger.Info("Launch request received", "type", ev.Type)
}

// Count returns the number of requests written
func (l *JSONLines) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
