package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
)

func TestExcelBuildWorkbook(t *testing.T) {
	classified, stats := sampleClassified()

	renderer := NewExcelRenderer(8)
	f, err := renderer.BuildWorkbook(classified, stats)
	if err != nil {
		t.Fatalf("BuildWorkbook failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	want := map[string]bool{
		"Summary":         false,
		"Definitely Lost": false,
		"Still Reachable": false,
		"Statistics":      false,
	}
	for _, sheet := range sheets {
		if _, ok := want[sheet]; ok {
			want[sheet] = true
		}
		if sheet == "Sheet1" {
			t.Error("Default sheet was not removed")
		}
		if sheet == "Invalid Read" {
			t.Error("Unexpected detail sheet for empty issue type")
		}
	}
	for sheet, found := range want {
		if !found {
			t.Errorf("Missing sheet %q", sheet)
		}
	}

	title, err := f.GetCellValue("Summary", "A1")
	if err != nil {
		t.Fatalf("Failed to read summary title: %v", err)
	}
	if title != "Valgrind Memory Analysis Summary" {
		t.Errorf("Unexpected summary title: %q", title)
	}

	// First data row of the critical detail sheet.
	severity, err := f.GetCellValue("Definitely Lost", "B2")
	if err != nil {
		t.Fatalf("Failed to read detail cell: %v", err)
	}
	if severity != "Critical" {
		t.Errorf("Expected Critical severity in detail sheet, got %q", severity)
	}
}

func TestExcelRenderWritesFile(t *testing.T) {
	classified, stats := sampleClassified()
	path := filepath.Join(t.TempDir(), "reports", "leaks.xlsx")

	renderer := NewExcelRenderer(8)
	if err := renderer.Render(classified, stats, path); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Workbook not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Workbook file is empty")
	}
}

func TestExcelFormatTrace(t *testing.T) {
	frames := []memcheck.StackFrame{
		{Address: "0x1", FunctionName: "a", SourceFile: "a.c", LineNumber: 1},
		{Address: "0x2", FunctionName: "b", SourceFile: "b.c", LineNumber: 2},
		{Address: "0x3", FunctionName: "c", SourceFile: "c.c", LineNumber: 3},
	}

	renderer := NewExcelRenderer(2)
	got := renderer.formatTrace(frames)

	want := "a (a.c:1)\nb (b.c:2)\n... 1 more"
	if got != want {
		t.Errorf("formatTrace = %q, want %q", got, want)
	}
}

func TestExcelRendererDefaultsFrameLimit(t *testing.T) {
	renderer := NewExcelRenderer(0)
	if renderer.maxTraceFrames != 8 {
		t.Errorf("Expected default frame limit 8, got %d", renderer.maxTraceFrames)
	}
}
