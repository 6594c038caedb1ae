package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/olegiv/valgrind-analyzer-go/internal/classify"
	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
)

// Compile-time interface check
var _ Renderer = (*ExcelRenderer)(nil)

const (
	summarySheet    = "Summary"
	statisticsSheet = "Statistics"
	defaultSheet    = "Sheet1"

	// maxColumnWidth caps auto-adjusted column widths.
	maxColumnWidth = 50.0
)

// ExcelRenderer writes a multi-sheet workbook: a summary sheet, one detail
// sheet per issue type that has records, and a statistics sheet.
type ExcelRenderer struct {
	// maxTraceFrames bounds the trace column in detail sheets. Truncation
	// here is a presentation choice; the records keep their full traces.
	maxTraceFrames int
}

// NewExcelRenderer creates an Excel renderer. maxTraceFrames values below 1
// fall back to 8.
func NewExcelRenderer(maxTraceFrames int) *ExcelRenderer {
	if maxTraceFrames < 1 {
		maxTraceFrames = 8
	}
	return &ExcelRenderer{maxTraceFrames: maxTraceFrames}
}

// Format implements Renderer.
func (r *ExcelRenderer) Format() Format { return FormatExcel }

// workbookStyles holds the style IDs shared across sheets.
type workbookStyles struct {
	title    int
	header   int
	critical int
	high     int
}

// Render implements Renderer. It builds the workbook in memory and saves it
// to outputPath, creating parent directories as needed.
func (r *ExcelRenderer) Render(classified classify.ClassifiedIssues, stats classify.Statistics, outputPath string) error {
	f, err := r.BuildWorkbook(classified, stats)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook to %s: %w", outputPath, err)
	}
	return nil
}

// BuildWorkbook assembles the workbook without saving it. Exposed for
// testing the sheet layout without touching the file system.
func (r *ExcelRenderer) BuildWorkbook(classified classify.ClassifiedIssues, stats classify.Statistics) (*excelize.File, error) {
	f := excelize.NewFile()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create workbook styles: %w", err)
	}

	if err := r.writeSummarySheet(f, styles, stats); err != nil {
		_ = f.Close()
		return nil, err
	}

	for _, t := range memcheck.AllIssueTypes() {
		records := classified.ByType[t]
		if len(records) == 0 {
			continue
		}
		if err := r.writeDetailSheet(f, styles, t, records); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if err := r.writeStatisticsSheet(f, styles, stats); err != nil {
		_ = f.Close()
		return nil, err
	}

	// Drop the implicit default sheet and land on the summary.
	if err := f.DeleteSheet(defaultSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(summarySheet)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(idx)

	return f, nil
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error

	s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, err
	}

	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"E6E6FA"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return s, err
	}

	s.critical, err = f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFCCCC"}, Pattern: 1},
		Border: thinBorder(),
	})
	if err != nil {
		return s, err
	}

	s.high, err = f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFE6CC"}, Pattern: 1},
		Border: thinBorder(),
	})
	return s, err
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Style: 1},
		{Type: "right", Style: 1},
		{Type: "top", Style: 1},
		{Type: "bottom", Style: 1},
	}
}

func (r *ExcelRenderer) writeSummarySheet(f *excelize.File, styles workbookStyles, stats classify.Statistics) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	if err := f.SetCellValue(summarySheet, "A1", "Valgrind Memory Analysis Summary"); err != nil {
		return err
	}
	if err := f.MergeCell(summarySheet, "A1", "D1"); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "D1", styles.title); err != nil {
		return err
	}

	overall := [][]interface{}{
		{"Total Issues", stats.TotalIssues},
		{"Total Bytes", stats.TotalBytes},
		{"Total Blocks", stats.TotalBlocks},
	}
	row := 3
	for _, pair := range overall {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &pair); err != nil {
			return err
		}
		row++
	}

	// Per-type breakdown, zero-filled for every enumerated type.
	row++
	headerRow := row
	header := []interface{}{"Issue Type", "Count", "Bytes", "Share"}
	if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", headerRow), &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet,
		fmt.Sprintf("A%d", headerRow), fmt.Sprintf("D%d", headerRow), styles.header); err != nil {
		return err
	}

	row++
	for _, t := range memcheck.AllIssueTypes() {
		cells := []interface{}{
			t.DisplayName(),
			stats.IssuesByType[t],
			stats.BytesByType[t],
			fmt.Sprintf("%.1f%%", stats.PercentageByType[t]*100),
		}
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}

	return f.SetColWidth(summarySheet, "A", "A", 22)
}

func (r *ExcelRenderer) writeDetailSheet(f *excelize.File, styles workbookStyles, t memcheck.IssueType, records []memcheck.IssueRecord) error {
	sheet := t.DisplayName()
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}

	header := []interface{}{"#", "Severity", "Bytes", "Blocks", "Loss Record", "Primary Function", "Source Location", "Stack Trace"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "H1", styles.header); err != nil {
		return err
	}

	for i, rec := range classify.Prioritize(records) {
		row := i + 2
		cells := []interface{}{
			i + 1,
			rec.Type.SeverityLabel(),
			rec.BytesCount,
			rec.BlocksCount,
			rec.LossRecordID,
			orUnknown(rec.PrimaryFunction()),
			orUnknown(rec.SourceLocation),
			r.formatTrace(rec.StackTrace),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}

		switch rec.Type.SeverityLabel() {
		case "Critical":
			if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), styles.critical); err != nil {
				return err
			}
		case "High":
			if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), styles.high); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(sheet, "F", "G", 32); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "H", "H", maxColumnWidth)
}

func (r *ExcelRenderer) writeStatisticsSheet(f *excelize.File, styles workbookStyles, stats classify.Statistics) error {
	if _, err := f.NewSheet(statisticsSheet); err != nil {
		return fmt.Errorf("failed to create statistics sheet: %w", err)
	}

	header := []interface{}{"Issue Type", "Count", "Bytes", "Blocks", "Percentage"}
	if err := f.SetSheetRow(statisticsSheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(statisticsSheet, "A1", "E1", styles.header); err != nil {
		return err
	}

	row := 2
	for _, t := range memcheck.AllIssueTypes() {
		cells := []interface{}{
			t.DisplayName(),
			stats.IssuesByType[t],
			stats.BytesByType[t],
			stats.BlocksByType[t],
			stats.PercentageByType[t],
		}
		if err := f.SetSheetRow(statisticsSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}

	// Top sources block.
	row++
	if err := f.SetCellValue(statisticsSheet, fmt.Sprintf("A%d", row), "Top Sources"); err != nil {
		return err
	}
	if err := f.SetCellStyle(statisticsSheet,
		fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), styles.header); err != nil {
		return err
	}
	row++
	for i, src := range stats.TopSources {
		cells := []interface{}{i + 1, src.Source, src.Count}
		if err := f.SetSheetRow(statisticsSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}

	return f.SetColWidth(statisticsSheet, "A", "A", 22)
}

// formatTrace renders up to maxTraceFrames frames, outermost first.
func (r *ExcelRenderer) formatTrace(frames []memcheck.StackFrame) string {
	n := len(frames)
	if n > r.maxTraceFrames {
		n = r.maxTraceFrames
	}

	parts := make([]string, 0, n+1)
	for _, frame := range frames[:n] {
		parts = append(parts, frame.String())
	}
	if len(frames) > n {
		parts = append(parts, fmt.Sprintf("... %d more", len(frames)-n))
	}
	return strings.Join(parts, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
