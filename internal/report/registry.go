// Package report renders classified memory issues and their statistics to
// an output medium. The core pipeline makes no assumption about the medium;
// renderers receive read-only structured data.
package report

import (
	"fmt"
	"sync"

	"github.com/olegiv/valgrind-analyzer-go/internal/classify"
)

// Format identifies an output format.
type Format string

// Supported output formats.
const (
	FormatExcel Format = "xlsx"
	FormatCSV   Format = "csv"
)

// Renderer writes a classified issue set and its statistics to outputPath.
type Renderer interface {
	// Render writes the report. The input structures are read-only views;
	// renderers must not mutate them.
	Render(classified classify.ClassifiedIssues, stats classify.Statistics, outputPath string) error

	// Format returns the format this renderer produces.
	Format() Format
}

// Registry holds the registered renderers keyed by format. It provides
// thread-safe access so renderers can be registered once and shared.
type Registry struct {
	mu        sync.RWMutex
	renderers map[Format]Renderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[Format]Renderer)}
}

// Register adds a renderer to the registry. A renderer with the same format
// overwrites the previous one.
func (r *Registry) Register(renderer Renderer) error {
	if renderer == nil {
		return fmt.Errorf("cannot register nil renderer")
	}
	if renderer.Format() == "" {
		return fmt.Errorf("renderer format cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.renderers[renderer.Format()] = renderer
	return nil
}

// Get retrieves a renderer by format. Returns false if none is registered.
func (r *Registry) Get(format Format) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	renderer, ok := r.renderers[format]
	return renderer, ok
}

// List returns all registered formats.
func (r *Registry) List() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]Format, 0, len(r.renderers))
	for f := range r.renderers {
		formats = append(formats, f)
	}
	return formats
}

// ValidFormats returns the valid format strings for configuration errors.
func ValidFormats() []string {
	return []string{string(FormatExcel), string(FormatCSV)}
}

// ParseFormat converts a string to a Format, rejecting unknown values.
func ParseFormat(s string) (Format, error) {
	switch s {
	case string(FormatExcel):
		return FormatExcel, nil
	case string(FormatCSV):
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("invalid report format: %q (valid formats: %v)", s, ValidFormats())
	}
}
