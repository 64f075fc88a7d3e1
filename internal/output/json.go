// internal/output/json.go
package output

import (
	"encoding/json"
	"fmt"
)

// JSONWriter buffers records and renders them as one pretty-printed
// array on Close. An empty or "-" path writes to stdout.
type JSONWriter struct {
	path    string
	records []map[string]interface{}
	closed  bool
}

// NewJSONWriter creates a JSON writer for the given path.
func NewJSONWriter(path string) (*JSONWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &JSONWriter{
		path:    path,
		records: []map[string]interface{}{},
	}, nil
}

// Write appends records to the pending document.
func (w *JSONWriter) Write(records []map[string]interface{}) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush is a no-op; the document renders once on Close.
func (w *JSONWriter) Flush() error { return nil }

// Close renders the buffered records and writes the document.
func (w *JSONWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	data, err := json.MarshalIndent(w.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	return writeDocument(w.path, append(data, '\n'))
}
