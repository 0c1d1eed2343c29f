// Package diag carries structured diagnostics from the core to whoever is
// driving it. Core packages never log directly.
package diag

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Severity orders diagnostics from most to least important.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
	Debug
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	}
	return "debug"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "error":
		*s = Error
	case "warning":
		*s = Warning
	case "note":
		*s = Note
	case "debug":
		*s = Debug
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Diagnostic is one reported event.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, d.Severity, d.Code, d.Message)
}

// Sink receives diagnostics.
type Sink interface {
	Report(Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Collector accumulates diagnostics; safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// All returns a copy of everything reported so far.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics have the given severity.
func (c *Collector) Count(s Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// WithFile stamps every diagnostic passing through with file.
func WithFile(s Sink, file string) Sink {
	return SinkFunc(func(d Diagnostic) {
		if d.File == "" {
			d.File = file
		}
		s.Report(d)
	})
}

// Tee forwards to every sink.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(d)
			}
		}
	})
}

// Logrus forwards diagnostics to a logrus logger at the matching level.
func Logrus(logger logrus.FieldLogger) Sink {
	return SinkFunc(func(d Diagnostic) {
		entry := logger.WithField("code", d.Code)
		if d.File != "" {
			entry = entry.WithField("file", d.File)
		}
		if d.Line > 0 {
			entry = entry.WithField("line", d.Line)
		}
		switch d.Severity {
		case Error:
			entry.Error(d.Message)
		case Warning:
			entry.Warn(d.Message)
		case Note:
			entry.Info(d.Message)
		default:
			entry.Debug(d.Message)
		}
	})
}
