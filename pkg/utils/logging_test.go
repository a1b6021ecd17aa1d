package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"DEBUG", DEBUG, false},
		{"info", INFO, false},
		{"Warning", WARN, false},
		{"ERROR", ERROR, false},
		{"VERBOSE", INFO, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !tt.wantErr && got.String() != strings.ToUpper(tt.input) && tt.input != "Warning" {
			t.Errorf("LogLevel.String() = %v, want %v", got.String(), strings.ToUpper(tt.input))
		}
	}

	if s := LogLevel(999).String(); s != "UNKNOWN" {
		t.Errorf("LogLevel(999).String() = %v, want UNKNOWN", s)
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(DEBUG, FormatText, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("debug message", "pool", "data")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 log lines, got %d", len(lines))
	}

	expectedContains := []string{
		"level=DEBUG msg=\"debug message\" pool=data",
		"level=INFO msg=\"info message\"",
		"level=WARN msg=\"warn message\"",
		"level=ERROR msg=\"error message\"",
	}
	for i, expected := range expectedContains {
		if !strings.Contains(lines[i], expected) {
			t.Errorf("Line %d does not contain expected text. Got: %s, Expected: %s", i, lines[i], expected)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(INFO, FormatJSON, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("connected", "cluster", "ceph")
	if !strings.Contains(buf.String(), `"msg":"connected"`) || !strings.Contains(buf.String(), `"cluster":"ceph"`) {
		t.Errorf("unexpected JSON output: %s", buf.String())
	}
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(WARN, FormatText, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Count(strings.TrimSpace(output), "\n") != 1 {
		t.Errorf("Expected 2 log lines, got %q", output)
	}
	if strings.Contains(output, "level=DEBUG") || strings.Contains(output, "level=INFO") {
		t.Error("DEBUG and INFO messages should be filtered out")
	}
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	if _, err := NewLogger(INFO, "xml", nil); err == nil {
		t.Error("Expected error for invalid format")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	logger := DiscardLogger()
	if OrDiscard(logger) != logger {
		t.Error("OrDiscard replaced a non-nil logger")
	}
}

func TestOpenLogOutput(t *testing.T) {
	w, closeFn, err := OpenLogOutput("")
	if err != nil || w == nil {
		t.Fatalf("OpenLogOutput(\"\") = %v, %v", w, err)
	}
	_ = closeFn()

	path := t.TempDir() + "/client.log"
	w, closeFn, err = OpenLogOutput(path)
	if err != nil {
		t.Fatalf("OpenLogOutput(file) error = %v", err)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Errorf("Write() error = %v", err)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}
}

// Sizes as df prints them.
func TestFormatBytes(t *testing.T) {
	for n, want := range map[int64]string{
		0:             "0 B",
		1023:          "1023 B",
		1536:          "1.5 KB",
		4 << 20:       "4.0 MB",
		3 << 30:       "3.0 GB",
		(1 << 40) + 1: "1.0 TB",
	} {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

// Sizes as truncate accepts them.
func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"5", 5, false},
		{"512B", 512, false},
		{"4k", 4 << 10, false},
		{"4MB", 4 << 20, false},
		{" 1.5G ", 3 << 29, false},
		{"2TB", 2 << 40, false},
		{"1P", 1 << 50, false},
		{"", 0, true},
		{"lots", 0, true},
		{"-1K", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
