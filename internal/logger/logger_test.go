package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{" warn ", WARN, false},
		{"warning", WARN, false},
		{"Error", ERROR, false},
		{"verbose", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func newTestLogger(t *testing.T, level LogLevel) (*Logger, string) {
	t.Helper()
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{
		LogDir:     tmpDir,
		Level:      level,
		MaxDays:    7,
		ConsoleOut: false,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, tmpDir
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestNewLogger(t *testing.T) {
	logger, tmpDir := newTestLogger(t, INFO)
	defer logger.Close()

	if logger.Level() != INFO {
		t.Errorf("Expected level INFO, got %v", logger.Level())
	}
	if logger.maxDays != 7 {
		t.Errorf("Expected maxDays 7, got %d", logger.maxDays)
	}
	if logger.Filename() != filepath.Join(tmpDir, LogFileName) {
		t.Errorf("Unexpected log file %s", logger.Filename())
	}
	if logger.rotator.MaxAge != 7 {
		t.Errorf("Expected rotator MaxAge 7, got %d", logger.rotator.MaxAge)
	}
}

func TestNewLogger_DefaultMaxDays(t *testing.T) {
	logger, err := NewLogger(Config{LogDir: t.TempDir(), Level: INFO})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.maxDays != 7 {
		t.Errorf("Expected default maxDays 7, got %d", logger.maxDays)
	}
}

func TestNewLogger_CreateLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs", "subdir")

	logger, err := NewLogger(Config{LogDir: logDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	// Verify directory was created
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}

func TestLogger_LogLevels(t *testing.T) {
	logger, tmpDir := newTestLogger(t, DEBUG)

	// Log messages at different levels
	logger.Debug("debug message %d", 1)
	logger.Info("info message %s", "test")
	logger.Warn("warn message")
	logger.Error("error message")

	logger.Close()

	logContent := readLog(t, tmpDir)
	for _, want := range []string{
		"[DEBUG]", "debug message 1",
		"[INFO]", "info message test",
		"[WARN]", "warn message",
		"[ERROR]", "error message",
	} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log should contain %q", want)
		}
	}
	if !strings.Contains(logContent, "logger_test.go") {
		t.Error("Log should record the calling file")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, tmpDir := newTestLogger(t, WARN) // Only WARN and ERROR should be logged

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	logger.Close()

	logContent := readLog(t, tmpDir)
	if strings.Contains(logContent, "[DEBUG]") {
		t.Error("DEBUG messages should be filtered out")
	}
	if strings.Contains(logContent, "[INFO]") {
		t.Error("INFO messages should be filtered out")
	}
	if !strings.Contains(logContent, "[WARN]") {
		t.Error("WARN messages should be logged")
	}
	if !strings.Contains(logContent, "[ERROR]") {
		t.Error("ERROR messages should be logged")
	}
}

func TestLogger_GetWriter(t *testing.T) {
	logger, tmpDir := newTestLogger(t, INFO)

	writer := logger.GetWriter(INFO)
	if writer == nil {
		t.Fatal("GetWriter should return a writer")
	}

	// Write to the logger via io.Writer
	n, err := writer.Write([]byte("test message via writer\n"))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if n != 24 { // "test message via writer\n" is 24 bytes
		t.Errorf("Expected to write 24 bytes, wrote %d", n)
	}

	logger.Close()
	if !strings.Contains(readLog(t, tmpDir), "test message via writer") {
		t.Error("Writer output should reach the log file")
	}
}

func TestLogger_Close(t *testing.T) {
	logger, _ := newTestLogger(t, INFO)

	if err := logger.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close returned error: %v", err)
	}

	// Logging after close is dropped silently
	logger.Info("after close")
}

func TestPackageLevelFunctions_WithNilLogger(t *testing.T) {
	// Save and clear the default logger
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	// These should not panic when default logger is nil
	Debug("test")
	Info("test")
	Warn("test")
	Error("test")

	if _, err := GetWriter(INFO).Write([]byte("discarded")); err != nil {
		t.Errorf("GetWriter before Init should discard, got %v", err)
	}

	err := Close()
	if err != nil {
		t.Errorf("Close with nil logger returned error: %v", err)
	}
}

func TestGetDefault(t *testing.T) {
	// Save and clear the default logger
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	if GetDefault() != nil {
		t.Error("GetDefault should return nil when no logger is initialized")
	}
}
