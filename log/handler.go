package log

import (
	"fmt"
	"io"
	"sync"
)

// Format renders a Record as a line of text.
type Format interface {
	Format(r *Record) []byte
}

type streamHandler struct {
	mu  sync.Mutex
	wr  io.Writer
	fmt Format
}

// StreamHandler writes formatted Records to wr, one per call, serialized by
// an internal mutex so concurrent subsystems can share a single destination.
func StreamHandler(wr io.Writer, fmtr Format) Handler {
	return &streamHandler{wr: wr, fmt: fmtr}
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.wr.Write(h.fmt.Format(r))
	return err
}

type terminalFormat struct {
	color bool
}

// TerminalFormat renders a Record as "LVL[time] msg key=val key=val", with
// ANSI level coloring when color is true (the destination is a real tty).
func TerminalFormat(color bool) Format {
	return &terminalFormat{color: color}
}

var lvlColor = map[Lvl]string{
	LvlCrit:  "\x1b[35m",
	LvlError: "\x1b[31m",
	LvlWarn:  "\x1b[33m",
	LvlInfo:  "\x1b[32m",
	LvlDebug: "\x1b[36m",
	LvlTrace: "\x1b[90m",
}

func (f *terminalFormat) Format(r *Record) []byte {
	ts := r.Time.Format("2006-01-02T15:04:05-0700")
	lvl := fmt.Sprintf("%-5s", r.Lvl.String())
	if f.color {
		lvl = lvlColor[r.Lvl] + lvl + "\x1b[0m"
	}
	line := fmt.Sprintf("%s[%s] %s%s\n", lvl, ts, r.Msg, formatCtx(r.Ctx))
	return []byte(line)
}

// DiscardHandler drops every Record. Useful for tests that don't want
// logging output on stderr.
func DiscardHandler() Handler { return discardHandler{} }

type discardHandler struct{}

func (discardHandler) Log(r *Record) error { return nil }
