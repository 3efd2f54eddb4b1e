package launcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/autodebug/autodebug/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLinesWritesOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLines(&buf, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Launch(context.Background(), types.LaunchRequest{"type": "launch", "name": "x"})
	l.Launch(context.Background(), types.LaunchRequest{"pid": json.Number("42")})

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	assert.JSONEq(t,
		`{"time":"2026-01-02T03:04:05Z","type":"launch","request":{"type":"launch","name":"x"}}`,
		lines[0])
	assert.JSONEq(t,
		`{"time":"2026-01-02T03:04:05Z","request":{"pid":42}}`,
		lines[1])
	assert.Equal(t, 2, l.Count())
}

func TestJSONLinesWriteFailure(t *testing.T) {
	l := NewJSONLines(failingWriter{}, nil)
	assert.NotPanics(t, func() {
		l.Launch(context.Background(), types.LaunchRequest{"type": "launch"})
	})
	assert.Equal(t, 0, l.Count())
}
