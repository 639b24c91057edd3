// Package notify delivers user-facing notifications. State changes in the
// core never depend on a notification being shown.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

type Level string

const (
	Success Level = "success"
	Error   Level = "error"
	Info    Level = "info"
)

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(level Level, message string)
}

// Func adapts a function to Notifier.
type Func func(level Level, message string)

func (f Func) Notify(level Level, message string) { f(level, message) }

// Discard drops every notification.
var Discard Notifier = Func(func(Level, string) {})

// Writer prints notifications to w and mirrors them to the log.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Notify(level Level, message string) {
	switch level {
	case Error:
		log.Warn().Str("notification", message).Msg("User notified of failure")
	default:
		log.Debug().Str("level", string(level)).Str("notification", message).Msg("User notified")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	prefix := "✓"
	switch level {
	case Error:
		prefix = "✗"
	case Info:
		prefix = "•"
	}
	fmt.Fprintf(n.w, "%s %s\n", prefix, message)
}

// Entry is one recorded notification.
type Entry struct {
	Level   Level
	Message string
}

// Recorder keeps notifications in memory for assertions.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Messages returns the recorded messages of the given level.
func (r *Recorder) Messages(level Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
