package log

import (
	"bytes"
	"errors"
	stdlog "log"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(stdlog.New(&buf, "", 0))
	SetLevel(LevelInfo)
	t.Cleanup(func() {
		SetOutput(stdlog.New(os.Stderr, "", 0))
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t)

	Debug("hidden at info level")
	Info("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked: %q", out)
	}
	if !strings.Contains(out, "[INFO] visible") {
		t.Errorf("info line missing: %q", out)
	}

	SetLevel(LevelDebug)
	Debug("now visible")
	if !strings.Contains(buf.String(), "[DEBUG] now visible") {
		t.Errorf("debug line missing after SetLevel: %q", buf.String())
	}
}

func TestKeyValueFormatting(t *testing.T) {
	buf := capture(t)

	Warn("pass skipped", "record", "tasks/review", "count", 3)
	out := buf.String()
	if !strings.Contains(out, "[WARN] pass skipped record=tasks/review count=3") {
		t.Errorf("unexpected line: %q", out)
	}
}

func TestErrorPrependsErr(t *testing.T) {
	buf := capture(t)

	Error("fetch failed", errors.New("boom"), "calendar", "primary")
	out := buf.String()
	if !strings.Contains(out, "[ERROR] fetch failed err=boom calendar=primary") {
		t.Errorf("unexpected line: %q", out)
	}
}
