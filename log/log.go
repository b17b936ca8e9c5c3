// Copyright 2026 The go-shroud Authors
// This file is part of go-shroud.
//
// go-shroud is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-shroud is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-shroud. If not, see <http://www.gnu.org/licenses/>.

// Package log provides the structured key-value logger used across the
// compiler: log.Info("msg", "key", value, ...). Records carry their call
// site; the terminal handler colours level tags when stderr is a TTY.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a log severity level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

// AlignedString returns a five-letter tag for terminal output.
func (l Lvl) AlignedString() string {
	switch l {
	case LvlTrace:
		return "TRACE"
	case LvlDebug:
		return "DEBUG"
	case LvlInfo:
		return "INFO "
	case LvlWarn:
		return "WARN "
	case LvlError:
		return "ERROR"
	default:
		return "CRIT "
	}
}

// Record is one log event.
type Record struct {
	Time time.Time
	Lvl  Lvl
	Msg  string
	Ctx  []interface{}
	Call stack.Call
}

// Logger writes leveled, key-value structured records.
type Logger interface {
	// New returns a child logger with ctx prepended to every record.
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
	h   *swapHandler
}

func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{ctx: append(append([]interface{}{}, l.ctx...), ctx...), h: l.h}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	l.h.Log(&Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  append(append([]interface{}{}, l.ctx...), ctx...),
		Call: stack.Caller(2),
	})
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(LvlCrit, msg, ctx)
	os.Exit(1)
}

// swapHandler allows Root's handler to be replaced while loggers hold it.
type swapHandler struct {
	mu      sync.Mutex
	handler Handler
}

func (s *swapHandler) Log(r *Record) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.Log(r)
	}
}

// Handler consumes records.
type Handler interface {
	Log(r *Record)
}

// ---- Terminal handler ------------------------------------------------------

type terminalHandler struct {
	mu     sync.Mutex
	w      io.Writer
	maxLvl Lvl
	useClr bool
}

var levelColors = map[Lvl]*color.Color{
	LvlTrace: color.New(color.FgHiBlack),
	LvlDebug: color.New(color.FgCyan),
	LvlInfo:  color.New(color.FgGreen),
	LvlWarn:  color.New(color.FgYellow),
	LvlError: color.New(color.FgRed),
	LvlCrit:  color.New(color.FgHiRed, color.Bold),
}

const termTimeFormat = "01-02|15:04:05.000"
const termMsgJust = 40

func (h *terminalHandler) Log(r *Record) {
	if r.Lvl > h.maxLvl {
		return
	}
	var b strings.Builder
	tag := r.Lvl.AlignedString()
	if h.useClr {
		tag = levelColors[r.Lvl].Sprint(tag)
	}
	fmt.Fprintf(&b, "%s[%s] %s", tag, r.Time.Format(termTimeFormat), r.Msg)
	if len(r.Ctx) > 0 {
		if pad := termMsgJust - len(r.Msg); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	for i := 0; i+1 < len(r.Ctx); i += 2 {
		k := formatValue(r.Ctx[i])
		v := formatValue(r.Ctx[i+1])
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	b.WriteByte('\n')
	h.mu.Lock()
	io.WriteString(h.w, b.String()) //nolint:errcheck // best-effort terminal write
	h.mu.Unlock()
}

func formatValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if strings.ContainsAny(s, " =") {
		return fmt.Sprintf("%q", s)
	}
	if s == "" {
		return `""`
	}
	return s
}

// ---- Root ------------------------------------------------------------------

var root = &logger{h: &swapHandler{}}

func init() {
	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	var w io.Writer = os.Stderr
	if useColor {
		w = colorable.NewColorableStderr()
	}
	root.h.handler = &terminalHandler{w: w, maxLvl: LvlInfo, useClr: useColor}
}

// Root returns the process-wide logger.
func Root() Logger { return root }

// SetVerbosity caps the level the root terminal handler emits.
func SetVerbosity(lvl Lvl) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	if th, ok := root.h.handler.(*terminalHandler); ok {
		th.maxLvl = lvl
	}
}

// SetOutput redirects the root handler; tests capture output through it.
func SetOutput(w io.Writer) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.handler = &terminalHandler{w: w, maxLvl: LvlTrace}
}

// New returns a child of the root logger.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

// Trace logs at trace level on the root logger.
func Trace(msg string, ctx ...interface{}) { root.write(LvlTrace, msg, ctx) }

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...interface{}) { root.write(LvlDebug, msg, ctx) }

// Info logs at info level on the root logger.
func Info(msg string, ctx ...interface{}) { root.write(LvlInfo, msg, ctx) }

// Warn logs at warn level on the root logger.
func Warn(msg string, ctx ...interface{}) { root.write(LvlWarn, msg, ctx) }

// Error logs at error level on the root logger.
func Error(msg string, ctx ...interface{}) { root.write(LvlError, msg, ctx) }

// Crit logs at crit level on the root logger and exits.
func Crit(msg string, ctx ...interface{}) {
	root.write(LvlCrit, msg, ctx)
	os.Exit(1)
}

// LvlFromString parses a verbosity name or digit.
func LvlFromString(s string) (Lvl, error) {
	switch strings.ToLower(s) {
	case "trace", "5":
		return LvlTrace, nil
	case "debug", "4":
		return LvlDebug, nil
	case "info", "3":
		return LvlInfo, nil
	case "warn", "2":
		return LvlWarn, nil
	case "error", "1":
		return LvlError, nil
	case "crit", "0":
		return LvlCrit, nil
	}
	return LvlInfo, fmt.Errorf("log: unknown level %q", s)
}
