package telemetry

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unaflow/unaflow/internal/pairing"
)

// stepClock advances by the next step on every call.
func stepClock(steps ...time.Duration) func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	i := 0
	return func() time.Time {
		if i < len(steps) {
			t = t.Add(steps[i])
		}
		i++
		return t
	}
}

func TestLog_Timings(t *testing.T) {
	var buf bytes.Buffer
	clock := stepClock(0, 2*time.Second, 500*time.Millisecond, 0, 3*time.Second)
	l := New(2, WithClock(clock), WithOutput(&buf))

	p := &pairing.Record{Index: 1, FlowName: "home_to_park"}
	l.Log("started", nil)
	l.Log("network topology created", p)
	l.Log("Origins and Destinations Inserted.", p)
	l.Log("Betweenness estimated.", p)

	events := l.Events()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[0].SecondsElapsed != 0 || events[0].CumulativeSeconds != 0 {
		t.Errorf("first event timings = %v/%v, want 0/0", events[0].SecondsElapsed, events[0].CumulativeSeconds)
	}

	sum := 0.0
	for i, e := range events {
		sum += e.SecondsElapsed
		if i > 0 && e.CumulativeSeconds < events[i-1].CumulativeSeconds {
			t.Errorf("cumulative decreased at %d: %v < %v", i, e.CumulativeSeconds, events[i-1].CumulativeSeconds)
		}
	}
	final := events[len(events)-1].CumulativeSeconds
	if math.Abs(sum-final) > 1e-9 {
		t.Errorf("sum(elapsed) = %v, final cumulative = %v", sum, final)
	}
	if final != 5.5 {
		t.Errorf("final cumulative = %v, want 5.5", final)
	}
	if events[3].SecondsElapsed != 3 {
		t.Errorf("elapsed of last event = %v, want 3 (time since the previous event)", events[3].SecondsElapsed)
	}

	out := buf.String()
	if strings.Count(out, "seconds elapsed") != 1 {
		t.Errorf("header should print exactly once:\n%s", out)
	}
	if !strings.Contains(out, "(2/2) home_to_park") {
		t.Errorf("missing pairing label:\n%s", out)
	}
	if !strings.Contains(out, "---") {
		t.Errorf("missing placeholder for unassociated event:\n%s", out)
	}
	if events[1].FlowName != "home_to_park" || events[0].FlowName != "" {
		t.Errorf("flow association = %q/%q", events[0].FlowName, events[1].FlowName)
	}
	if l.Count("Betweenness estimated.") != 1 {
		t.Error("Count mismatch")
	}
}

func TestLog_WriteCSV(t *testing.T) {
	l := New(1, WithClock(stepClock(0, time.Second)), WithOutput(&bytes.Buffer{}))
	l.Log("a", nil)
	l.Log("b, with comma", &pairing.Record{FlowName: "f"})

	path := filepath.Join(t.TempDir(), "time_log.csv")
	if err := l.WriteCSV(path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), data)
	}
	if lines[0] != ",time,flow_name,event,seconds_elapsed,cumulative_seconds" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], `"b, with comma"`) || !strings.HasSuffix(lines[2], "1.000000,1.000000") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestCenter(t *testing.T) {
	if got := center("ab", 6); got != "  ab  " {
		t.Errorf("center = %q", got)
	}
	if got := center("abc", 6); got != " abc  " {
		t.Errorf("center = %q", got)
	}
	if got := center("toolong", 3); got != "toolong" {
		t.Errorf("center = %q", got)
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run_ledger.db")

	ld, err := OpenLedger(ctx, path, "run-1", "flow", "test")
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { ld.Close() })

	l := New(1, WithClock(stepClock(0, time.Second)), WithOutput(&bytes.Buffer{}), WithLedger(ld))
	l.Log("start", nil)
	l.Log("pairing", &pairing.Record{Index: 0, FlowName: "f"})

	events, err := ld.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ledger events = %d, want 2", len(events))
	}
	if events[0].Pairing != -1 || events[1].Pairing != 0 || events[1].FlowName != "f" {
		t.Errorf("ledger events = %+v", events)
	}
	if events[1].CumulativeSeconds != 1 {
		t.Errorf("cumulative = %v, want 1", events[1].CumulativeSeconds)
	}
}
