// internal/output/yaml.go
package output

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLWriter buffers records and renders them as one YAML sequence on
// Close. An empty or "-" path writes to stdout.
type YAMLWriter struct {
	path    string
	records []map[string]interface{}
	closed  bool
}

// NewYAMLWriter creates a YAML writer for the given path.
func NewYAMLWriter(path string) (*YAMLWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &YAMLWriter{
		path:    path,
		records: []map[string]interface{}{},
	}, nil
}

// Write appends records to the pending document.
func (w *YAMLWriter) Write(records []map[string]interface{}) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush is a no-op; the document renders once on Close.
func (w *YAMLWriter) Flush() error { return nil }

// Close renders the buffered records and writes the document.
func (w *YAMLWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	data, err := yaml.Marshal(w.records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	return writeDocument(w.path, data)
}
