// internal/output/csv.go
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// CSVWriter streams records as CSV rows. The header comes from the
// first batch's keys; later batches reuse those columns, so keys that
// only appear later are dropped and missing ones render empty.
type CSVWriter struct {
	file    *os.File
	writer  *csv.Writer
	columns []string
}

// NewCSVWriter creates a CSV writer for the given path. An empty or "-"
// path writes to stdout.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	var file *os.File
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
		out, file = f, f
	}

	return &CSVWriter{
		file:   file,
		writer: csv.NewWriter(out),
	}, nil
}

// Write appends one row per record.
func (w *CSVWriter) Write(records []map[string]interface{}) error {
	if len(records) == 0 {
		return nil
	}

	if w.columns == nil {
		w.columns = columnsOf(records)
		if err := w.writer.Write(w.columns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := make([]string, len(w.columns))
	for _, record := range records {
		for i, column := range w.columns {
			row[i] = cellString(record[column])
		}
		if err := w.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.writer.Flush()
	return w.writer.Error()
}

// Flush pushes buffered rows to the destination.
func (w *CSVWriter) Flush() error {
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file when the writer owns one.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
