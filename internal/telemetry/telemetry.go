// Package telemetry declares the sinks the pool and workflow runner report to.
package telemetry

import "time"

// Sink accepts a message plus optional key/value pairs.
type Sink interface {
	Log(msg string, keysAndValues ...any)
}

// Timings records durations into named series.
type Timings interface {
	Observe(series string, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Log(string, ...any) {}

func (Nop) Observe(string, time.Duration) {}

// SinkOrNop returns s, or Nop when s is nil.
func SinkOrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// TimingsOrNop returns t, or Nop when t is nil.
func TimingsOrNop(t Timings) Timings {
	if t == nil {
		return Nop{}
	}
	return t
}
