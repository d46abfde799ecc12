// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger configures the process-wide slog logger.
//
// Records whose call site is a third-party package (an import path with a
// domain, outside this module) are dropped unless the level is DEBUG. That
// keeps SDK chatter (gRPC, pinecone, genai) out of normal output. Records from
// this module, package main, the standard library, or without a call site are
// always kept.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

const modulePrefix = "github.com/kadirpekel/fosrc"

// Formats accepted by Init.
const (
	FormatSimple  = "simple"
	FormatVerbose = "verbose"
	FormatJSON    = "json"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
)

// ParseLevel converts a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// SetLevel changes the active level without rebuilding handlers.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the active level.
func Level() slog.Level {
	return level.Level()
}

// Init installs the default logger writing to output.
//
// format is one of "simple" (level + message + attrs), "verbose" (adds time)
// or "json". Color is used only when output is a terminal.
func Init(l slog.Level, output io.Writer, format string) {
	mu.Lock()
	defer mu.Unlock()

	level.Set(l)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	case FormatVerbose:
		handler = &lineHandler{out: output, color: isTerminal(output), withTime: true}
	default:
		handler = &lineHandler{out: output, color: isTerminal(output)}
	}

	defaultLogger = slog.New(&filteringHandler{next: handler})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens path for appending and returns a cleanup func.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// GetLogger returns the default logger, initializing it on first use.
func GetLogger() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		Init(slog.LevelInfo, os.Stderr, FormatSimple)
		return GetLogger()
	}
	return l
}

// filteringHandler enforces the active level and hides third-party records
// unless running at DEBUG.
type filteringHandler struct {
	next slog.Handler
}

func (h *filteringHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= level.Level() && h.next.Enabled(ctx, l)
}

func (h *filteringHandler) Handle(ctx context.Context, r slog.Record) error {
	if level.Level() > slog.LevelDebug && thirdParty(callerName(r.PC)) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{next: h.next.WithAttrs(attrs)}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{next: h.next.WithGroup(name)}
}

func callerName(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return frame.Function
}

// thirdParty reports whether the fully qualified function name belongs to a
// package fetched from outside this module.
func thirdParty(function string) bool {
	if function == "" || function == modulePrefix || strings.HasPrefix(function, modulePrefix+"/") ||
		strings.HasPrefix(function, modulePrefix+".") {
		return false
	}
	slash := strings.IndexByte(function, '/')
	if slash < 0 {
		return false
	}
	return strings.Contains(function[:slash], ".")
}

// lineHandler writes "LEVEL message key=value ..." lines.
type lineHandler struct {
	mu       sync.Mutex
	out      io.Writer
	color    bool
	withTime bool
	attrs    []slog.Attr
	group    string
}

func (h *lineHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	if h.withTime && !r.Time.IsZero() {
		b.WriteString(r.Time.Format("2006/01/02 15:04:05 "))
	}

	name := levelName(r.Level)
	if h.color {
		b.WriteString(levelColor(r.Level))
		b.WriteString(name)
		b.WriteString("\033[0m")
	} else {
		b.WriteString(name)
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return clone
}

func (h *lineHandler) clone() *lineHandler {
	return &lineHandler{
		out:      h.out,
		color:    h.color,
		withTime: h.withTime,
		attrs:    append([]slog.Attr(nil), h.attrs...),
		group:    h.group,
	}
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.Resolve().String())
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m"
	case l >= slog.LevelWarn:
		return "\033[33m"
	case l >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
