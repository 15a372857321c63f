package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIHandlerFormatsAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewCLI(&buf, slog.LevelDebug).With("stage", "objects").WithGroup("clang")
	logger.Info("compiling object", "source", "main.bpf.c", "attempt", 1, "err", errors.New("no such file"))

	line := buf.String()
	if !strings.HasPrefix(line, "INFO ") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	for _, want := range []string{
		"| compiling object",
		" stage=objects",
		" clang.source=main.bpf.c",
		" clang.attempt=1",
		` clang.err="no such file"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestCLIHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewCLI(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestCargoHandlerPrefixesWarnings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(ModeCargo, &buf, slog.LevelInfo)
	logger.Info("starting cross build")
	logger.Warn("cross build\nfailed", "code", 101)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if strings.HasPrefix(lines[0], "cargo:") {
		t.Fatalf("info record must not become a directive: %q", lines[0])
	}
	if lines[1] != "cargo:warning=WARN | cross build failed code=101" {
		t.Fatalf("unexpected warning line %q", lines[1])
	}
}

func TestJSONHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(ModeJSON, &buf, nil).Info("installed binary", "name", "log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "installed binary" || record["name"] != "log" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestParseModeAndLevel(t *testing.T) {
	t.Parallel()

	for value, want := range map[string]Mode{"": ModeCLI, "cli": ModeCLI, "JSON": ModeJSON, "cargo": ModeCargo} {
		got, err := ParseMode(value)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", value, got, err)
		}
	}
	if _, err := ParseMode("xml"); err == nil {
		t.Fatal("ParseMode() accepted xml")
	}

	for value, want := range map[string]slog.Level{"debug": slog.LevelDebug, "Warning": slog.LevelWarn, "err": slog.LevelError} {
		level, err := ParseLevel(value)
		if err != nil || level != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", value, level, err)
		}
	}
	if level, _ := ParseLevel(""); level != slog.LevelInfo {
		t.Fatalf("empty level should default to info, got %v", level)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("ParseLevel() accepted loud")
	}
}
