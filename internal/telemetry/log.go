// Package telemetry records the ordered, time-stamped event log of a run.
//
// The Log is the only timing instrument in unaflow. Each event carries the
// seconds since the previous event and the seconds since the run started,
// and is streamed to the console as it is recorded so a failure's position
// in the pairing sequence is visible even if the run dies abruptly.
package telemetry

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/unaflow/unaflow/internal/pairing"
)

// Event is one telemetry record.
type Event struct {
	Time  time.Time
	Event string

	// FlowName associates the event with a pairing; empty otherwise.
	FlowName string
	// Pairing is the 0-based pairing index, or -1.
	Pairing int

	SecondsElapsed    float64
	CumulativeSeconds float64
}

// Log is an append-only event log. Not safe for concurrent use.
type Log struct {
	start  time.Time
	now    func() time.Time
	out    io.Writer
	logger *slog.Logger
	ledger *Ledger

	// total is the pairing table length, for "(i/total)" labels.
	total int

	events     []Event
	sumElapsed float64
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithOutput sets where progress lines are printed (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(l *Log) { l.out = w }
}

// WithLedger mirrors every event into a SQLite ledger.
func WithLedger(ld *Ledger) Option {
	return func(l *Log) { l.ledger = ld }
}

// WithLogger sets the logger used to report ledger failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// New starts a log for a run over a pairing table of total rows.
func New(total int, opts ...Option) *Log {
	l := &Log{
		now:    time.Now,
		out:    os.Stdout,
		logger: slog.Default(),
		total:  total,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.start = l.now()
	return l
}

// Log appends an event, optionally associated with pairing p, and prints it.
// The first event of a log prints the column header and has zero timings.
func (l *Log) Log(event string, p *pairing.Record) {
	t := l.now()
	var elapsed, cumulative float64
	if len(l.events) == 0 {
		fmt.Fprintf(l.out, "%s | %s | %s | event\n", center("total time", 10), center("seconds elapsed", 15), center("flow_name", 40))
	} else {
		cumulative = t.Sub(l.start).Seconds()
		elapsed = cumulative - l.sumElapsed
	}

	e := Event{Time: t, Event: event, Pairing: -1, SecondsElapsed: elapsed, CumulativeSeconds: cumulative}
	label := "---"
	if p != nil {
		e.FlowName = p.FlowName
		e.Pairing = p.Index
		label = p.Label(l.total)
	}
	l.events = append(l.events, e)
	l.sumElapsed += elapsed

	fmt.Fprintf(l.out, "%10.4f | %15.6f | %s | %s\n", cumulative, elapsed, center(label, 40), event)

	if l.ledger != nil {
		if err := l.ledger.Append(context.Background(), len(l.events)-1, e); err != nil {
			l.logger.Warn("telemetry ledger append failed", "event", event, "error", err)
		}
	}
}

// Events returns a copy of the recorded events in insertion order.
func (l *Log) Events() []Event {
	return append([]Event(nil), l.events...)
}

// Len returns the number of recorded events.
func (l *Log) Len() int { return len(l.events) }

// Count returns how many events have the given description.
func (l *Log) Count(event string) int {
	n := 0
	for _, e := range l.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// WriteCSV writes the full log as a table with a leading row index.
func (l *Log) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create time log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"", "time", "flow_name", "event", "seconds_elapsed", "cumulative_seconds"}); err != nil {
		return fmt.Errorf("write time log header: %w", err)
	}
	for i, e := range l.events {
		row := []string{
			strconv.Itoa(i),
			e.Time.Format("2006-01-02 15:04:05.000000"),
			e.FlowName,
			e.Event,
			strconv.FormatFloat(e.SecondsElapsed, 'f', 6, 64),
			strconv.FormatFloat(e.CumulativeSeconds, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write time log row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush time log: %w", err)
	}
	return f.Close()
}

// center pads s with spaces on both sides to width, extra space on the right.
func center(s string, width int) string {
	n := width - len([]rune(s))
	if n <= 0 {
		return s
	}
	left := n / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", n-left)
}
