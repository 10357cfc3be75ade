// Package telemetry records session events in memory and ships them to a
// sink in batches.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/satishbabariya/duckql/runtime/session"
)

// Event is the serialized form of a session event.
type Event struct {
	Kind           string    `json:"kind"`
	Conn           uint64    `json:"conn"`
	SQL            string    `json:"sql,omitempty"`
	Params         int       `json:"params,omitempty"`
	DurationMicros int64     `json:"duration_us"`
	Rows           int64     `json:"rows,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Sink receives flushed batches.
type Sink interface {
	Send(ctx context.Context, events []Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, events []Event) error

func (f SinkFunc) Send(ctx context.Context, events []Event) error { return f(ctx, events) }

// Stats are running totals per event kind.
type Stats struct {
	Counts map[session.EventKind]int64
	Errors map[session.EventKind]int64
	// Total time spent per kind, in microseconds.
	Micros map[session.EventKind]int64
}

// Options configures a Recorder.
type Options struct {
	// BatchSize triggers a flush once this many events are buffered.
	BatchSize int
	// FlushInterval flushes periodically when positive.
	FlushInterval time.Duration
	// OnError is called when the sink fails. Failed batches are dropped.
	OnError func(error)
}

// Recorder is a session.Observer that buffers events and counts them by
// kind. Full batches are sent on a separate goroutine so Observe never
// waits for the sink.
type Recorder struct {
	sink Sink
	opts Options

	mu     sync.Mutex
	buf    []Event
	stats  Stats
	closed bool

	sendMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder. A nil sink keeps counters only.
func NewRecorder(sink Sink, opts Options) *Recorder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	r := &Recorder{
		sink: sink,
		opts: opts,
		stats: Stats{
			Counts: make(map[session.EventKind]int64),
			Errors: make(map[session.EventKind]int64),
			Micros: make(map[session.EventKind]int64),
		},
		stop: make(chan struct{}),
	}
	if opts.FlushInterval > 0 {
		r.startBackgroundFlush()
	}
	return r
}

// Observe records e.
func (r *Recorder) Observe(e session.Event) {
	ev := Event{
		Kind:           string(e.Kind),
		Conn:           e.Conn,
		SQL:            e.SQL,
		Params:         len(e.Params),
		DurationMicros: e.DurationMicros,
		Rows:           e.Rows,
		Timestamp:      e.Time,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.stats.Counts[e.Kind]++
	r.stats.Micros[e.Kind] += e.DurationMicros
	if e.Err != nil {
		r.stats.Errors[e.Kind]++
	}
	if r.sink != nil {
		r.buf = append(r.buf, ev)
		if len(r.buf) >= r.opts.BatchSize {
			batch := r.take()
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_ = r.send(context.Background(), batch)
			}()
		}
	}
	r.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Stats{
		Counts: make(map[session.EventKind]int64, len(r.stats.Counts)),
		Errors: make(map[session.EventKind]int64, len(r.stats.Errors)),
		Micros: make(map[session.EventKind]int64, len(r.stats.Micros)),
	}
	for k, v := range r.stats.Counts {
		out.Counts[k] = v
	}
	for k, v := range r.stats.Errors {
		out.Errors[k] = v
	}
	for k, v := range r.stats.Micros {
		out.Micros[k] = v
	}
	return out
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Flush sends buffered events to the sink.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.take()
	r.mu.Unlock()
	if batch == nil {
		return nil
	}
	return r.send(ctx, batch)
}

// Close stops the background flush, waits for batches in flight and sends
// what is left.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()
	return r.Flush(context.Background())
}

// take must be called with mu held.
func (r *Recorder) take() []Event {
	if len(r.buf) == 0 {
		return nil
	}
	batch := r.buf
	r.buf = nil
	return batch
}

// send serializes deliveries to the sink.
func (r *Recorder) send(ctx context.Context, batch []Event) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	err := r.sink.Send(ctx, batch)
	if err != nil && r.opts.OnError != nil {
		r.opts.OnError(err)
	}
	return err
}

func (r *Recorder) startBackgroundFlush() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.opts.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = r.Flush(context.Background())
			case <-r.stop:
				return
			}
		}
	}()
}

// WriterSink writes each event as one JSON line.
func WriterSink(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc(func(ctx context.Context, events []Event) error {
		mu.Lock()
		defer mu.Unlock()
		enc := json.NewEncoder(w)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// HTTPSink posts each batch as {"events": [...]} to endpoint.
func HTTPSink(client *http.Client, endpoint, userAgent string) Sink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return SinkFunc(func(ctx context.Context, events []Event) error {
		payload, err := json.Marshal(map[string]any{"events": events})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			return fmt.Errorf("telemetry endpoint returned %s", resp.Status)
		}
		return nil
	})
}
