package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"Trace", LevelTrace},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtTrace bool
	}{
		{"info filters debug", "info", false, false},
		{"debug passes debug", "debug", true, false},
		{"trace passes everything", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug visible = %v, want %v", got, tt.logAtDebug)
			}

			buf.Reset()
			logger.Log(context.Background(), LevelTrace, "trace message")
			if got := strings.Contains(buf.String(), "trace message"); got != tt.logAtTrace {
				t.Errorf("trace visible = %v, want %v", got, tt.logAtTrace)
			}
			if tt.logAtTrace && !strings.Contains(buf.String(), "level=TRACE") {
				t.Errorf("expected TRACE level label, got %q", buf.String())
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected discard logger to drop errors")
	}
}

func TestNewTraceLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "info")
	if tl != nil {
		t.Fatal("expected nil TraceLogger at info level")
	}

	// Nil logger is safe to use.
	if seq := tl.Recompute(nil, Summary{Rounds: 1}); seq != 0 {
		t.Errorf("nil logger returned seq %d", seq)
	}
	tl.Close()

	if _, err := os.Stat(filepath.Join(dir, "trace.jsonl")); err == nil {
		t.Error("trace.jsonl should not exist at info level")
	}
}

type traceLine struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq"`
	Time  string          `json:"time"`
	Data  json.RawMessage `json:"data"`
}

func readTrace(t *testing.T, dir string) []traceLine {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "trace.jsonl"))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var lines []traceLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line traceLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestTraceLogger_Recompute(t *testing.T) {
	rounds := []Round{
		{Number: 1, PhaseHot: 3, NeutralHot: 2, Flips: []Flip{{Device: "K1", Energized: true}}},
		{Number: 2, PhaseHot: 5, NeutralHot: 2},
	}
	sum := Summary{Rounds: 2, Converged: true, Energized: []string{"K1"}, Shorted: []string{}, InterPhase: []string{}}

	tests := []struct {
		level     string
		wantLines []string
	}{
		{"debug", []string{"recompute", "recompute"}},
		{"trace", []string{"round", "round", "recompute", "round", "round", "recompute"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			dir := t.TempDir()
			tl := NewTraceLogger(dir, tt.level)
			if tl == nil {
				t.Fatalf("expected TraceLogger at %s level", tt.level)
			}

			if seq := tl.Recompute(rounds, sum); seq != 1 {
				t.Errorf("first seq = %d, want 1", seq)
			}
			if seq := tl.Recompute(rounds, sum); seq != 2 {
				t.Errorf("second seq = %d, want 2", seq)
			}
			tl.Close()

			// Writing after Close is a no-op.
			if seq := tl.Recompute(rounds, sum); seq != 0 {
				t.Errorf("seq after close = %d, want 0", seq)
			}

			lines := readTrace(t, dir)
			if len(lines) != len(tt.wantLines) {
				t.Fatalf("expected %d lines, got %d", len(tt.wantLines), len(lines))
			}
			for i, line := range lines {
				if line.Event != tt.wantLines[i] {
					t.Errorf("line %d event = %q, want %q", i, line.Event, tt.wantLines[i])
				}
				if line.Time == "" {
					t.Errorf("line %d has no time", i)
				}
			}
			if first, last := lines[0], lines[len(lines)-1]; first.Seq != 1 || last.Seq != 2 {
				t.Errorf("seq range = %d..%d, want 1..2", first.Seq, last.Seq)
			}
		})
	}
}

func TestTraceLogger_TypedPayloads(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "trace")
	if tl == nil {
		t.Fatal("expected TraceLogger at trace level")
	}
	tl.Recompute(
		[]Round{{Number: 1, PhaseHot: 4, NeutralHot: 2, Flips: []Flip{{Device: "K1", Energized: true}}}},
		Summary{Rounds: 1, Converged: false, Energized: []string{"K1"}, DurationUS: 12},
	)
	tl.Close()

	lines := readTrace(t, dir)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var round Round
	if err := json.Unmarshal(lines[0].Data, &round); err != nil {
		t.Fatalf("decode round: %v", err)
	}
	if round.PhaseHot != 4 || len(round.Flips) != 1 || round.Flips[0].Device != "K1" {
		t.Errorf("unexpected round payload: %+v", round)
	}

	var sum Summary
	if err := json.Unmarshal(lines[1].Data, &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Converged || sum.DurationUS != 12 || len(sum.Energized) != 1 {
		t.Errorf("unexpected summary payload: %+v", sum)
	}
}
