package report

import (
	"testing"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(NewCSVRenderer()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(NewExcelRenderer(8)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := registry.Get(FormatCSV); !ok {
		t.Error("Expected csv renderer to be registered")
	}
	if _, ok := registry.Get(FormatExcel); !ok {
		t.Error("Expected xlsx renderer to be registered")
	}
	if _, ok := registry.Get("pdf"); ok {
		t.Error("Unexpected renderer for unregistered format")
	}

	if got := len(registry.List()); got != 2 {
		t.Errorf("Expected 2 registered formats, got %d", got)
	}
}

func TestRegistryRejectsNil(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(nil); err == nil {
		t.Error("Expected error registering nil renderer")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "xlsx", want: FormatExcel},
		{in: "csv", want: FormatCSV},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
		{in: "XLSX", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
