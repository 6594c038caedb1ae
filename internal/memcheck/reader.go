package memcheck

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// bannerScanWindow is how many leading lines are searched for the Memcheck
// banner before the file is rejected as not a Valgrind log.
const bannerScanWindow = 50

// Reader handles reading and validating Valgrind log files. The core
// pipeline itself never touches the file system; it consumes the ordered
// lines the reader produces.
type Reader struct {
	maxSizeMB int
}

// NewReader creates a reader with the given size ceiling in megabytes.
func NewReader(maxSizeMB int) *Reader {
	return &Reader{maxSizeMB: maxSizeMB}
}

// Read loads the log file and returns its ordered lines. It validates that
// the file exists, is readable, fits the size ceiling, and carries the
// Memcheck banner near the top.
func (r *Reader) Read(path string) ([]string, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("valgrind log file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to stat valgrind log: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("valgrind log path is not a regular file: %s", path)
	}

	maxBytes := int64(r.maxSizeMB) * 1024 * 1024
	if fileInfo.Size() > maxBytes {
		return nil, fmt.Errorf("valgrind log exceeds maximum size of %dMB (size: %.2fMB)",
			r.maxSizeMB, float64(fileInfo.Size())/1024/1024)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read valgrind log: %w", err)
	}

	lines := SplitLines(string(content))
	if err := r.Validate(lines); err != nil {
		return nil, fmt.Errorf("valgrind log validation failed: %w", err)
	}

	return lines, nil
}

// Validate checks that the lines look like Memcheck output: the tool banner
// must appear within the first bannerScanWindow lines.
func (r *Reader) Validate(lines []string) error {
	if len(lines) == 0 {
		return fmt.Errorf("valgrind log is empty")
	}

	limit := len(lines)
	if limit > bannerScanWindow {
		limit = bannerScanWindow
	}
	for _, line := range lines[:limit] {
		if IsBanner(line) {
			return nil
		}
	}

	return fmt.Errorf("no Memcheck banner found within the first %d lines; not a valgrind log", bannerScanWindow)
}

// GetSourceInfo returns metadata about the log file for progress logging.
func (r *Reader) GetSourceInfo(path string) (map[string]interface{}, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"size_bytes": fileInfo.Size(),
		"size_mb":    float64(fileInfo.Size()) / 1024 / 1024,
		"modified":   fileInfo.ModTime(),
		"age_hours":  time.Since(fileInfo.ModTime()).Hours(),
	}, nil
}

// SplitLines splits decoded log content into ordered lines, tolerating both
// Unix and Windows line endings. A trailing newline does not produce an
// empty final line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
