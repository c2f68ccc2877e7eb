package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// reset swaps in a fresh logging state for the duration of a test.
func reset(t *testing.T) {
	t.Helper()
	prev := std
	std = newState()
	t.Cleanup(func() {
		if std.file != nil {
			_ = std.file.Close()
		}
		std = prev
	})
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
			"orchestrator": "debug",
			"iisexpress":   "warn",
			"registry":     "bogus",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"orchestrator", true, true, true},
		{"iisexpress", false, false, true},
		{"registry", false, true, true},
		{"other", false, true, true},
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

	before := GetLogger("localdb")
	if enabled(before, slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"localdb": "debug"}})

	if after := GetLogger("localdb"); after != before {
		t.Error("GetLogger should return the cached logger")
	}
	if !enabled(before, slog.LevelDebug) {
		t.Error("cached logger should follow the configured level")
	}
}

func TestInitializeWritesLogFile(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "logs", "devbooster.log")

	logger := GetLogger("orchestrator")
	Initialize(Config{Level: "debug", Format: "json", File: path})
	logger.Info("Instance started", "instance", "alpha")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"msg":"Instance started"`, `"module":"orchestrator"`, `"instance":"alpha"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log file missing %s:\n%s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input  string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{" info ", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := parseLevel(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandler(t *testing.T) {
	var debugBuf, infoBuf bytes.Buffer
	debug := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debug, nil, info)).With("module", "process")
	logger.Debug("debug only")
	logger.Info("both")

	if strings.Count(debugBuf.String(), "debug only") != 1 || strings.Contains(infoBuf.String(), "debug only") {
		t.Errorf("debug record routed wrong:\n%s\n%s", debugBuf.String(), infoBuf.String())
	}
	for _, out := range []string{debugBuf.String(), infoBuf.String()} {
		if !strings.Contains(out, "both") || !strings.Contains(out, "module=process") {
			t.Errorf("info record missing:\n%s", out)
		}
	}
}

func TestMultiHandlerKeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	good := slog.NewTextHandler(&buf, nil)
	bad := failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)}

	h := NewMultiHandler(bad, good)
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0)
	if err := h.Handle(context.Background(), r); err == nil {
		t.Error("expected the sink error to be reported")
	}
	if !strings.Contains(buf.String(), "still written") {
		t.Errorf("healthy sink skipped: %q", buf.String())
	}
}

func TestJournalHandlerTracksLevelVar(t *testing.T) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelWarn)
	h := NewJournalHandler(levelVar)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}

	levelVar.Set(slog.LevelDebug)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled after lowering the LevelVar")
	}
}

func TestAddAttrToFields(t *testing.T) {
	fields := make(map[string]string)
	addAttrToFields(fields, slog.Group("session", slog.String("instance", "Sample"), slog.Int("port", 6229)), "")
	addAttrToFields(fields, slog.Float64("ready.seconds", 1.5), "")
	addAttrToFields(fields, slog.String("_private", "x"), "SESSION_")

	want := map[string]string{
		"SESSION_INSTANCE": "Sample",
		"SESSION_PORT":     "6229",
		"READY_SECONDS":    "1.5",
		"SESSION_PRIVATE":  "x",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestFieldKey(t *testing.T) {
	tests := map[string]string{
		"instance":    "INSTANCE",
		"exit-code":   "EXIT_CODE",
		"_hidden":     "HIDDEN",
		"pid2":        "PID2",
		"engine.name": "ENGINE_NAME",
	}
	for in, want := range tests {
		if got := fieldKey(in); got != want {
			t.Errorf("fieldKey(%q) = %q, want %q", in, got, want)
		}
	}
}
