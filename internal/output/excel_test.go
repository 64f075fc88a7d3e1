// internal/output/excel_test.go
package output

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExcelWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.xlsx")

	w, err := NewExcelWriter(path)
	if err != nil {
		t.Fatalf("NewExcelWriter returned error: %v", err)
	}
	if err := w.Write([]map[string]interface{}{
		{"name": "Widget", "price": "19.99"},
		{"name": "Gadget", "price": "5.00"},
	}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	file, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows(excelSheetName)
	if err != nil {
		t.Fatalf("failed to read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("sheet holds %d rows, want 3", len(rows))
	}
	if rows[0][0] != "name" || rows[0][1] != "price" {
		t.Errorf("header = %v, want [name price]", rows[0])
	}
	if rows[1][0] != "Widget" || rows[2][1] != "5.00" {
		t.Errorf("data rows = %v, want Widget and 5.00", rows[1:])
	}
}

func TestExcelWriterRequiresPath(t *testing.T) {
	if _, err := NewExcelWriter(""); err == nil {
		t.Error("expected error for empty path")
	}
}
