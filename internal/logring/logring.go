// Package logring provides a capped in-memory ring buffer of recent log
// records, tapped from the zap logger core, grounded on the original
// balanz project's memory_log_handler.py. Nothing exposes it externally
// (no admin-API surface), per spec.md's Non-goals for the log surface.
package logring

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

// Record is one captured log line.
type Record struct {
	Level   string
	Message string
	Fields  map[string]any
}

// Ring is a fixed-capacity circular buffer of the most recent Records.
type Ring struct {
	mu       sync.Mutex
	buf      []Record
	capacity int
	next     int
	full     bool
}

// NewRing constructs a ring buffer holding at most capacity records.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{buf: make([]Record, capacity), capacity: capacity}
}

func (r *Ring) push(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns a copy of the buffered records in chronological order.
func (r *Ring) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Record, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Record, r.capacity)
	copy(out, r.buf[r.next:])
	copy(out[r.capacity-r.next:], r.buf[:r.next])
	return out
}

// core is a zapcore.Core that writes every entry into a Ring in addition
// to whatever it wraps.
type core struct {
	zapcore.Core
	ring *Ring
}

// WrapCore returns a zapcore.Core that taps every entry into ring before
// delegating to base.
func WrapCore(base zapcore.Core, ring *Ring) zapcore.Core {
	return &core{Core: base, ring: ring}
}

func (c *core) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	c.ring.push(Record{Level: entry.Level.String(), Message: entry.Message, Fields: enc.Fields})
	return c.Core.Write(entry, fields)
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	return &core{Core: c.Core.With(fields), ring: c.ring}
}
