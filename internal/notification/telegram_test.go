package notification

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/olegiv/valgrind-analyzer-go/internal/classify"
	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
)

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Plain text",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "Source location",
			input: "buffer.c:42",
			want:  "buffer\\.c\\:42",
		},
		{
			name:  "Underscores and dashes",
			input: "definitely_lost-count",
			want:  "definitely\\_lost\\-count",
		},
		{
			name:  "Parentheses",
			input: "malloc (vg_replace_malloc.c:299)",
			want:  "malloc \\(vg\\_replace\\_malloc\\.c\\:299\\)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeMarkdown(tt.input); got != tt.want {
				t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	client := &TelegramClient{}

	short := "short message"
	if got := client.splitMessage(short); len(got) != 1 || got[0] != short {
		t.Errorf("Short message should pass through unchanged, got %v", got)
	}

	// Many lines that together exceed the limit split at line boundaries.
	line := strings.Repeat("x", 100)
	long := strings.Repeat(line+"\n", 100)
	parts := client.splitMessage(long)
	if len(parts) < 2 {
		t.Fatalf("Expected split into multiple messages, got %d", len(parts))
	}
	for i, part := range parts {
		if len(part) > maxMessageLength {
			t.Errorf("Part %d exceeds limit: %d chars", i, len(part))
		}
	}

	// A single oversized line is hard-split.
	giant := strings.Repeat("y", maxMessageLength*2+10)
	parts = client.splitMessage(giant)
	for i, part := range parts {
		if len(part) > maxMessageLength {
			t.Errorf("Part %d exceeds limit: %d chars", i, len(part))
		}
	}
}

func TestIsRateLimitError(t *testing.T) {
	if !isRateLimitError(errors.New("Too Many Requests: retry after 30")) {
		t.Error("Expected rate limit detection for Too Many Requests")
	}
	if !isRateLimitError(errors.New("telegram: 429")) {
		t.Error("Expected rate limit detection for 429")
	}
	if isRateLimitError(errors.New("connection refused")) {
		t.Error("Unexpected rate limit detection")
	}
	if isRateLimitError(nil) {
		t.Error("Unexpected rate limit detection for nil")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "Explicit retry value",
			err:  errors.New("Too Many Requests: retry after 30"),
			want: 30,
		},
		{
			name: "No value falls back to conservative wait",
			err:  errors.New("Too Many Requests"),
			want: 30,
		},
		{
			name: "Nil error",
			err:  nil,
			want: 0,
		},
		{
			name: "Different value",
			err:  errors.New("Too Many Requests: retry after 5"),
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRetryAfter(tt.err); got != tt.want {
				t.Errorf("extractRetryAfter = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	records := []memcheck.IssueRecord{
		{Type: memcheck.DefinitelyLost, BytesCount: 32, BlocksCount: 1, SourceLocation: "buffer.c:42"},
		{Type: memcheck.StillReachable, BytesCount: 560, BlocksCount: 14, SourceLocation: "pool.c:20"},
	}
	classified := classify.Classify(records)
	stats := classify.ComputeStatistics(classified, 10)

	client := &TelegramClient{hostname: "buildhost"}
	msg := client.formatMessage(&Report{
		Stats:         &stats,
		InputPath:     "/logs/valgrind.log",
		ReportPath:    "reports/leaks.xlsx",
		ParseWarnings: 1,
		Duration:      1500 * time.Millisecond,
	})

	for _, want := range []string{
		"Valgrind Memory Report",
		"buildhost",
		"CRITICAL",
		"Total Issues\\: 2",
		"Critical Issues\\: 1",
		"Parse Warnings\\: 1",
		"Definitely Lost",
		"Top Sources",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatMessageCleanRun(t *testing.T) {
	classified := classify.Classify(nil)
	stats := classify.ComputeStatistics(classified, 10)

	client := &TelegramClient{hostname: "buildhost"}
	msg := client.formatMessage(&Report{
		Stats:     &stats,
		InputPath: "/logs/valgrind.log",
	})

	if !strings.Contains(msg, "CLEAN") {
		t.Errorf("Expected clean status, got:\n%s", msg)
	}
	if strings.Contains(msg, "Issues by Type") {
		t.Error("Empty run should not list issue types")
	}
}
