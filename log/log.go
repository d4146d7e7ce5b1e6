// Package log implements leveled, structured logging in the log15 idiom:
// a Logger built from New(ctx...) carries a fixed set of key/value context
// pairs, and each call site adds call-specific pairs on top. Output goes
// through a Handler, which can be swapped (e.g. to a file, or to a
// terminal-colorized writer) without touching call sites.
//
// Grounded on the teacher's own logging call shape (consensus/dpos/dpos.go's
// log.Warn("DPoS sealing result not read by miner", "sealhash", ...),
// core/rawdb/accessors_state.go's log.Crit("Failed to store trie preimage",
// "err", err)); the package itself was reimplemented here since the
// teacher's own log package was test-only in the retrieval pack.
package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging severity level, ordered most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "crit"
	case LvlError:
		return "error"
	case LvlWarn:
		return "warn"
	case LvlInfo:
		return "info"
	case LvlDebug:
		return "debug"
	default:
		return "trace"
	}
}

// Record is a single log event: a level, a message, the call stack frame it
// was emitted from, and a flat slice of alternating key/value pairs.
type Record struct {
	Time  time.Time
	Lvl   Lvl
	Msg   string
	Ctx   []interface{}
	Call  stack.Call
}

// Handler processes a Record, e.g. formatting and writing it somewhere.
type Handler interface {
	Log(r *Record) error
}

// Logger emits Records carrying a fixed context on top of whatever is
// passed at the call site.
type Logger interface {
	New(ctx ...interface{}) Logger
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
}

var (
	handlerMu sync.RWMutex
	handler   = defaultHandler()
	root      = &logger{}
)

// defaultHandler writes colorized terminal output to stderr when stderr is
// a tty, plain text otherwise.
func defaultHandler() Handler {
	isTTY := isatty.IsTerminal(os.Stderr.Fd())
	if isTTY {
		return StreamHandler(colorableWriter(os.Stderr), TerminalFormat(true))
	}
	return StreamHandler(os.Stderr, TerminalFormat(false))
}

// Root returns the root logger, whose handler every derived Logger writes
// through.
func Root() Logger { return root }

// SetHandler replaces the root handler.
func SetHandler(h Handler) {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	handler = h
}

// New returns a derived Logger carrying ctx in addition to l's own context.
func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{ctx: append(append([]interface{}(nil), l.ctx...), ctx...)}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  append(append([]interface{}(nil), l.ctx...), ctx...),
		Call: stack.Caller(2),
	}
	handlerMu.RLock()
	h := handler
	handlerMu.RUnlock()
	_ = h.Log(r)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// New is a package-level convenience equal to Root().New(ctx...).
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }

func formatCtx(ctx []interface{}) string {
	out := ""
	for i := 0; i+1 < len(ctx); i += 2 {
		out += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	if len(ctx)%2 == 1 {
		out += fmt.Sprintf(" %v=MISSING", ctx[len(ctx)-1])
	}
	return out
}

// colorableWriter exists so StreamHandler can wrap os.Stderr/os.Stdout with
// ANSI-aware coloring when the destination is a real terminal.
func colorableWriter(f *os.File) interface{ Write([]byte) (int, error) } {
	return colorable.NewColorable(f)
}
