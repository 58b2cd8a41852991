// Package logging provides leveled logging and solver tracing for relaysim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for structured JSONL solver traces (.relaysim/trace.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every solver
// round is logged, not just the summary of a recompute.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing text records to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Flip is a device that changed state within a round.
type Flip struct {
	Device    string `json:"device"`
	Energized bool   `json:"energized"`
}

// Round is one solver round: the size of both hot sets and the coils that
// flipped against them.
type Round struct {
	Number     int    `json:"round"`
	PhaseHot   int    `json:"phase_hot"`
	NeutralHot int    `json:"neutral_hot"`
	Flips      []Flip `json:"flips,omitempty"`
}

// Summary is the settled outcome of one recompute.
type Summary struct {
	Rounds     int      `json:"rounds"`
	Converged  bool     `json:"converged"`
	Energized  []string `json:"energized"`
	Shorted    []string `json:"shorted"`
	InterPhase []string `json:"inter_phase"`
	DurationUS int64    `json:"duration_us"`
}

// entry is the JSONL line layout. Every line of one recompute shares seq.
type entry struct {
	Event string `json:"event"`
	Seq   uint64 `json:"seq"`
	Time  string `json:"time"`
	Data  any    `json:"data"`
}

// TraceLogger appends solver traces to a JSONL file. A nil TraceLogger is
// valid and ignores every call.
type TraceLogger struct {
	mu     sync.Mutex
	file   *os.File
	rounds bool
	seq    uint64
}

// NewTraceLogger opens dir/trace.jsonl for append when level is debug or
// trace. Round lines are only written at trace level. At info level, or when
// the file cannot be opened, it returns nil.
func NewTraceLogger(dir string, level string) *TraceLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, "trace.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TraceLogger{file: f, rounds: lvl <= LevelTrace}
}

// Recompute writes one "round" line per round, when enabled, followed by a
// "recompute" line carrying sum. It returns the sequence number shared by
// those lines, or 0 when nothing was written.
func (tl *TraceLogger) Recompute(rounds []Round, sum Summary) uint64 {
	if tl == nil {
		return 0
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return 0
	}

	tl.seq++
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var buf []byte
	if tl.rounds {
		for _, r := range rounds {
			buf = appendEntry(buf, entry{Event: "round", Seq: tl.seq, Time: now, Data: r})
		}
	}
	buf = appendEntry(buf, entry{Event: "recompute", Seq: tl.seq, Time: now, Data: sum})
	_, _ = tl.file.Write(buf)
	return tl.seq
}

func appendEntry(buf []byte, e entry) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return buf
	}
	buf = append(buf, data...)
	return append(buf, '\n')
}

// Close closes the underlying file. Safe to call on a nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	tl.file.Close()
	tl.file = nil
}
