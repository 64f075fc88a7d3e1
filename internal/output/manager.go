// internal/output/manager.go
package output

import (
	"fmt"

	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/template"
)

// Manager owns one writer for one run. It strips record bookkeeping
// before handing batches to the writer and feeds the output metrics.
type Manager struct {
	writer Writer
	format string
}

// NewManager builds the writer named by the template's output block.
func NewManager(spec *template.OutputSpec) (*Manager, error) {
	if spec == nil {
		return nil, fmt.Errorf("output configuration is required")
	}

	writer, err := NewWriter(spec)
	if err != nil {
		return nil, err
	}

	format := spec.Format
	if format == "" {
		format = FormatJSON
	}

	return &Manager{
		writer: writer,
		format: format,
	}, nil
}

// Write cleans the records and hands them to the writer.
func (m *Manager) Write(records []extractor.Record) error {
	cleaned := Clean(records)
	if len(cleaned) == 0 {
		return nil
	}

	if err := m.writer.Write(cleaned); err != nil {
		monitoring.Default().RecordOutputError(m.format)
		return fmt.Errorf("failed to write records: %w", err)
	}
	monitoring.Default().RecordRecordsWritten(m.format, len(cleaned))
	return nil
}

// Flush forwards to the writer.
func (m *Manager) Flush() error {
	if err := m.writer.Flush(); err != nil {
		monitoring.Default().RecordOutputError(m.format)
		return err
	}
	return nil
}

// Close finalizes the destination. Document formats render here, so a
// Close error still counts as an output error.
func (m *Manager) Close() error {
	if err := m.writer.Close(); err != nil {
		monitoring.Default().RecordOutputError(m.format)
		return err
	}
	return nil
}
