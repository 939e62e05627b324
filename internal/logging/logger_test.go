package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"
)

func reset(t *testing.T) {
	t.Helper()
	mu.Lock()
	modules = make(map[string]*module)
	current = Config{}
	initialized = false
	logBuffer = nil
	logCallback = nil
	mu.Unlock()
}

func enabled(l *slog.Logger, level slog.Level) bool {
	return l.Handler().Enabled(context.Background(), level)
}

func TestModuleLevelOverride(t *testing.T) {
	reset(t)
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"streams": "debug",
			"api":     "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"streams", true, true, true},
		{"api", false, false, true},
		{"hal", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			logger := GetLogger(tt.module)
			if got := enabled(logger, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := enabled(logger, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := enabled(logger, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	reset(t)

	early := GetLogger("backend")
	if enabled(early, slog.LevelDebug) {
		t.Fatal("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"backend": "debug"}})

	// The early handle shares the module level.
	if !enabled(early, slog.LevelDebug) {
		t.Error("early logger should follow the module level after Initialize")
	}
	if !enabled(GetLogger("backend"), slog.LevelDebug) {
		t.Error("rebuilt logger should have debug enabled")
	}
}

func TestSetLevels(t *testing.T) {
	reset(t)
	Initialize(Config{Level: "info"})
	hal := GetLogger("hal")
	api := GetLogger("api")

	changed := SetLevels(Config{Level: "info", Modules: map[string]string{"hal": "debug", "api": "info"}})
	if !slices.Equal(changed, []string{"hal"}) {
		t.Errorf("changed = %v, want [hal]", changed)
	}
	if !enabled(hal, slog.LevelDebug) {
		t.Error("hal should log debug after reload")
	}
	if enabled(api, slog.LevelDebug) {
		t.Error("api should stay at info")
	}

	changed = SetLevels(Config{Level: "error"})
	slices.Sort(changed)
	if !slices.Equal(changed, []string{"api", "hal"}) {
		t.Errorf("changed = %v, want [api hal]", changed)
	}

	levels := Levels()
	if levels["hal"] != "error" || levels["api"] != "error" {
		t.Errorf("levels = %v", levels)
	}
}

func TestBufferAndCallback(t *testing.T) {
	reset(t)
	Initialize(Config{Level: "debug"})

	var got []LogEntry
	SetLogCallback(func(e LogEntry) { got = append(got, e) })
	defer SetLogCallback(nil)

	GetLogger("streams").Info("Stream opened", "stream_id", "s1", "frames", 512)

	entries := GetBuffer().ReadAll()
	if len(entries) == 0 {
		t.Fatal("buffer is empty")
	}
	last := entries[len(entries)-1]
	if last.Module != "streams" || last.Message != "Stream opened" || last.Level != "info" {
		t.Errorf("entry = %+v", last)
	}
	if last.Attributes["stream_id"] != "s1" {
		t.Errorf("attributes = %v", last.Attributes)
	}
	if len(got) == 0 || got[len(got)-1].Message != "Stream opened" {
		t.Errorf("callback entries = %v", got)
	}

	line := FormatLogLine(last)
	if !strings.Contains(line, "[INFO] [streams] Stream opened") || !strings.Contains(line, "frames=512 stream_id=s1") {
		t.Errorf("FormatLogLine = %q", line)
	}
}

func TestBufferHandlerGroups(t *testing.T) {
	reset(t)
	Initialize(Config{Level: "debug"})

	logger := GetLogger("hal").WithGroup("dev").With("id", 257)
	logger.Warn("Probe failed", slog.Group("caps", "rate", 48000), "error", errors.New("busy"))

	entries := GetBuffer().ReadAll()
	last := entries[len(entries)-1]
	if last.Module != "hal" {
		t.Errorf("module = %q", last.Module)
	}
	want := map[string]any{"dev.id": int64(257), "dev.caps.rate": int64(48000), "dev.error": "busy"}
	for k, v := range want {
		if last.Attributes[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, last.Attributes[k], last.Attributes[k], v)
		}
	}
	if len(last.Attributes) != len(want) {
		t.Errorf("attributes = %v", last.Attributes)
	}
}

func TestJournalField(t *testing.T) {
	tests := []struct {
		path []string
		key  string
		want string
	}{
		{nil, "stream_id", "STREAM_ID"},
		{[]string{"dev"}, "rate", "DEV_RATE"},
		{nil, "hw:0,0", "HW_0_0"},
		{nil, "_private", "PRIVATE"},
		{nil, "2nd", "ND"},
		{nil, "---", ""},
	}
	for _, tt := range tests {
		if got := journalField(tt.path, tt.key); got != tt.want {
			t.Errorf("journalField(%v, %q) = %q, want %q", tt.path, tt.key, got, tt.want)
		}
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")

	if n := strings.Count(buf.String(), "debug only message"); n != 1 {
		t.Errorf("got %d copies, want 1. Output: %s", n, buf.String())
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink closed") }

func TestMultiHandlerFlattensAndJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, nil)
	failing := failingHandler{text}

	m := NewMultiHandler(nil, NewMultiHandler(text, failing))
	if len(m.handlers) != 2 {
		t.Fatalf("handlers = %d, want 2", len(m.handlers))
	}

	err := slog.New(m).Handler().Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0))
	if err == nil || !strings.Contains(err.Error(), "sink closed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(buf.String(), "still written") {
		t.Errorf("output = %q", buf.String())
	}
	if m.WithGroup("") != slog.Handler(m) {
		t.Error("empty group must return the handler itself")
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		rb.Write(LogEntry{Message: msg})
	}
	var msgs []string
	for _, e := range rb.ReadAll() {
		msgs = append(msgs, e.Message)
	}
	if !slices.Equal(msgs, []string{"b", "c", "d"}) {
		t.Errorf("ReadAll = %v", msgs)
	}
	if rb.Count() != 3 {
		t.Errorf("Count = %d", rb.Count())
	}

	var seqs []uint64
	for _, e := range rb.Since(2) {
		seqs = append(seqs, e.Seq)
	}
	if !slices.Equal(seqs, []uint64{3, 4}) {
		t.Errorf("Since(2) = %v", seqs)
	}
	if got := rb.Since(4); len(got) != 0 {
		t.Errorf("Since(4) = %v", got)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseLevel(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseLevel(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}
