package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()

	log := New(Config{
		Level:   "debug",
		LogDir:  dir,
		Console: false,
	})
	if log == nil {
		t.Fatal("Expected logger to be created")
	}

	log.Info().Str("key", "value").Msg("test entry")

	data, err := os.ReadFile(filepath.Join(dir, "analyzer.log"))
	if err != nil {
		t.Fatalf("Log file not written: %v", err)
	}
	if !strings.Contains(string(data), "test entry") {
		t.Errorf("Log file missing entry: %s", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"INFO", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithField(t *testing.T) {
	log := New(Config{Level: "info", LogDir: t.TempDir(), Console: false})

	derived := log.WithField("component", "reader")
	if derived == nil {
		t.Fatal("Expected derived logger")
	}
	if derived == log {
		t.Error("WithField should return a new logger")
	}
}
