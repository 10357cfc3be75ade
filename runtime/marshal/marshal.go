// Package marshal converts values between the application value model and
// the native parameter and cell shapes of the engine. The declared column
// type always drives the conversion; a nil type falls back to the runtime
// shape of the value.
package marshal

import (
	"fmt"
	"strings"
	"time"
)

// Options configures a Marshaller.
type Options struct {
	// UUIDAsString decodes UUID columns to text instead of the uuid variant.
	UUIDAsString bool
	// TextFraming encodes 128-bit integers as decimal text and blobs as
	// \xNN escaped text, for transports that only carry text.
	TextFraming bool
	// Location interprets naive values bound to zone-aware columns.
	// Defaults to time.Local.
	Location *time.Location
}

// Marshaller encodes bind parameters and decodes result cells. It holds no
// mutable state and is safe for concurrent use.
type Marshaller struct {
	opts Options
}

// New creates a Marshaller.
func New(opts Options) *Marshaller {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Marshaller{opts: opts}
}

// Default is a Marshaller with zero options.
var Default = New(Options{})

// Options returns the configuration of m.
func (m *Marshaller) Options() Options { return m.opts }

// Text layouts of the engine's temporal types.
const (
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04:05.999999"
	timestampLayout   = "2006-01-02 15:04:05.999999"
	timestampNSLayout = "2006-01-02 15:04:05.999999999"
	offsetLayout      = "-07:00"
)

func indexPath(path string, i int) string { return fmt.Sprintf("%s[%d]", path, i) }

func fieldPath(path, name string) string { return path + "." + name }

func keyPath(path, key string) string { return path + "[" + key + "]" }

// formatOffset renders a UTC offset in seconds as ±hh:mm.
func formatOffset(secs int) string {
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("%s%02d:%02d", sign, secs/3600, (secs%3600)/60)
}

// formatTimeOfDay renders a duration since midnight as hh:mm:ss[.ffffff].
func formatTimeOfDay(d time.Duration) string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format(timeLayout)
}

// escapeBlob renders every byte as \xNN.
func escapeBlob(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 4)
	for _, c := range b {
		fmt.Fprintf(&sb, `\x%02X`, c)
	}
	return sb.String()
}
