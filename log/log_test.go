package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesContextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := handler
	SetHandler(StreamHandler(&buf, TerminalFormat(false)))
	defer SetHandler(prev)

	l := New("module", "p2p")
	l.Warn("session dropped", "peer", "10.0.0.1:30303")

	out := buf.String()
	require.Contains(t, out, "warn")
	require.Contains(t, out, "session dropped")
	require.Contains(t, out, "module=p2p")
	require.Contains(t, out, "peer=10.0.0.1:30303")
}

func TestDiscardHandlerDropsRecords(t *testing.T) {
	prev := handler
	SetHandler(DiscardHandler())
	defer SetHandler(prev)
	// Must not panic or block.
	Info("noop", "x", 1)
}

func TestFormatCtxHandlesOddLength(t *testing.T) {
	out := formatCtx([]interface{}{"a", 1, "dangling"})
	require.True(t, strings.Contains(out, "a=1"))
	require.True(t, strings.Contains(out, "dangling=MISSING"))
}
