package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olegiv/valgrind-analyzer-go/internal/classify"
)

// Compile-time interface check
var _ Renderer = (*CSVRenderer)(nil)

// csvHeader is the column set of the flat CSV export.
var csvHeader = []string{
	"Issue Type", "Severity", "Bytes", "Blocks",
	"Loss Record", "Primary Function", "Source Location",
}

// CSVRenderer writes a flat, prioritized issue listing. It serves both as a
// standalone format and as the fallback when workbook generation fails.
type CSVRenderer struct{}

// NewCSVRenderer creates a CSV renderer.
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// Format implements Renderer.
func (r *CSVRenderer) Format() Format { return FormatCSV }

// Render implements Renderer.
func (r *CSVRenderer) Render(classified classify.ClassifiedIssues, stats classify.Statistics, outputPath string) error {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create csv report: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := r.RenderTo(file, classified); err != nil {
		return err
	}
	return file.Close()
}

// RenderTo writes the CSV rows to w, critical issues first.
func (r *CSVRenderer) RenderTo(w io.Writer, classified classify.ClassifiedIssues) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, rec := range classify.Prioritize(classified.All) {
		row := []string{
			rec.Type.DisplayName(),
			rec.Type.SeverityLabel(),
			strconv.FormatInt(rec.BytesCount, 10),
			strconv.FormatInt(rec.BlocksCount, 10),
			rec.LossRecordID,
			orUnknown(rec.PrimaryFunction()),
			orUnknown(rec.SourceLocation),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FallbackPath derives the CSV path used when falling back from another
// format: the extension is swapped for .csv.
func FallbackPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	if ext == "" {
		return outputPath + ".csv"
	}
	return outputPath[:len(outputPath)-len(ext)] + ".csv"
}
