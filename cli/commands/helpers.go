package commands

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/satishbabariya/duckql/cli/internal/ui"
	"github.com/satishbabariya/duckql/config"
	"github.com/satishbabariya/duckql/internal/debug"
	"github.com/satishbabariya/duckql/runtime/client"
	"github.com/satishbabariya/duckql/runtime/session"
	"github.com/satishbabariya/duckql/runtime/types"
	"github.com/satishbabariya/duckql/telemetry"
)

// openClient opens the engine described by cfg with logging and, when
// --events is set, an event recorder writing JSON lines.
func (f *globalFlags) openClient(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	var observers []session.Observer
	var events *eventLog
	if f.events != "" {
		file, err := os.OpenFile(f.events, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open events file: %w", err)
		}
		events = &eventLog{
			Recorder: telemetry.NewRecorder(telemetry.WriterSink(file), telemetry.Options{
				BatchSize: 32,
				OnError:   func(err error) { debug.Warn("event sink failed", "error", err) },
			}),
			file: file,
		}
		observers = append(observers, events)
	}

	logger := debug.Logger()
	if !debug.Enabled() {
		logger = nil
	}
	opts := []client.Option{client.WithMonitor(session.NewMonitor(logger, observers...))}
	if debug.Enabled() {
		opts = append(opts, client.WithMiddleware(client.LoggingMiddleware(debug.Logger())))
	}

	cl, err := client.Open(ctx, cfg, opts...)
	if err != nil {
		if events != nil {
			events.Close()
		}
		return nil, err
	}
	return cl, nil
}

// eventLog is a recorder that owns its output file. The monitor closes it
// with the client.
type eventLog struct {
	*telemetry.Recorder
	file *os.File
}

func (e *eventLog) Close() error {
	err := e.Recorder.Close()
	if cerr := e.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// parseArg turns a command line argument into a value: null, true/false,
// integers of any size and floats are recognised, anything else is text. A
// leading "text:" forces text.
func parseArg(s string) types.Value {
	if rest, ok := strings.CutPrefix(s, "text:"); ok {
		return types.Text(rest)
	}
	switch strings.ToLower(s) {
	case "null":
		return types.Null()
	case "true":
		return types.Bool(true)
	case "false":
		return types.Bool(false)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.Int(n)
	}
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return types.BigInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.Float(f)
	}
	return types.Text(s)
}

func printRows(cols []session.Column, rows [][]types.Value) error {
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Name
	}
	body := make([][]string, len(rows))
	for i, row := range rows {
		body[i] = ui.RowStrings(row)
	}
	return ui.PrintTable(headers, body)
}
