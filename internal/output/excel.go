// internal/output/excel.go
package output

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const excelSheetName = "Records"

// ExcelWriter streams records into an xlsx worksheet and saves it on
// Close. The header row comes from the first batch's keys, styled bold
// so the sheet is readable as delivered.
type ExcelWriter struct {
	path    string
	file    *excelize.File
	columns []string
	row     int
	closed  bool
}

// NewExcelWriter creates an Excel writer for the given path.
func NewExcelWriter(path string) (*ExcelWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("excel output requires a path")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	file.SetSheetName(file.GetSheetName(0), excelSheetName)

	return &ExcelWriter{
		path: path,
		file: file,
		row:  1,
	}, nil
}

// Write appends one worksheet row per record.
func (w *ExcelWriter) Write(records []map[string]interface{}) error {
	if len(records) == 0 {
		return nil
	}

	if w.columns == nil {
		w.columns = columnsOf(records)
		if err := w.writeHeader(); err != nil {
			return err
		}
	}

	for _, record := range records {
		for i, column := range w.columns {
			cell, err := excelize.CoordinatesToCellName(i+1, w.row)
			if err != nil {
				return err
			}
			if err := w.file.SetCellValue(excelSheetName, cell, cellString(record[column])); err != nil {
				return err
			}
		}
		w.row++
	}
	return nil
}

func (w *ExcelWriter) writeHeader() error {
	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, column := range w.columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(excelSheetName, cell, column); err != nil {
			return err
		}
		if err := w.file.SetCellStyle(excelSheetName, cell, cell, style); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

// Flush is a no-op; the workbook saves once on Close.
func (w *ExcelWriter) Flush() error { return nil }

// Close saves the workbook.
func (w *ExcelWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", w.path, err)
	}
	return w.file.Close()
}
