package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/satishbabariya/duckql/runtime/types"
)

// EventKind identifies a connection activity.
type EventKind string

const (
	EventConnect  EventKind = "connect"
	EventPrepare  EventKind = "prepare"
	EventExecute  EventKind = "execute"
	EventClose    EventKind = "close"
	EventBegin    EventKind = "begin"
	EventCommit   EventKind = "commit"
	EventRollback EventKind = "rollback"
)

// Event describes one completed activity on a connection.
type Event struct {
	Kind           EventKind
	Conn           uint64
	SQL            string
	Params         []types.Value
	DurationMicros int64
	// Rows is the number of rows read or affected, when known.
	Rows int64
	Err  error
	Time time.Time
}

// Observer receives events. Observe must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Monitor fans events out to observers. A nil Monitor discards events.
type Monitor struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	observers []Observer
	closed    bool
}

// NewMonitor creates a Monitor. A non-nil logger also receives every event
// through a LogObserver.
func NewMonitor(logger *slog.Logger, observers ...Observer) *Monitor {
	m := &Monitor{logger: logger}
	if logger != nil {
		m.observers = append(m.observers, NewLogObserver(logger))
	}
	m.observers = append(m.observers, observers...)
	return m
}

// Logger returns the monitor's logger, or a discarding one.
func (m *Monitor) Logger() *slog.Logger {
	if m == nil || m.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.logger
}

// Subscribe adds an observer.
func (m *Monitor) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Emit delivers e to every observer.
func (m *Monitor) Emit(e Event) {
	if m == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	for _, o := range m.observers {
		o.Observe(e)
	}
}

// Close stops delivery and closes observers that implement io.Closer.
func (m *Monitor) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var first error
	for _, o := range m.observers {
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// LogObserver writes events as structured log records. Failed activities
// are logged at error level, the rest at Level.
type LogObserver struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewLogObserver logs events at debug level.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{Logger: logger, Level: slog.LevelDebug}
}

func (o *LogObserver) Observe(e Event) {
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.Uint64("conn", e.Conn),
		slog.Int64("duration_us", e.DurationMicros),
	}
	if e.SQL != "" {
		attrs = append(attrs, slog.String("sql", truncateSQL(e.SQL)))
	}
	if len(e.Params) > 0 {
		attrs = append(attrs, slog.Int("params", len(e.Params)))
	}
	if e.Rows > 0 {
		attrs = append(attrs, slog.Int64("rows", e.Rows))
	}
	level := o.Level
	if e.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	o.Logger.LogAttrs(context.Background(), level, "duckql "+string(e.Kind), attrs...)
}
