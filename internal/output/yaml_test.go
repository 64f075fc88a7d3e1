// internal/output/yaml_test.go
package output

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestYAMLWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")

	w, err := NewYAMLWriter(path)
	if err != nil {
		t.Fatalf("NewYAMLWriter returned error: %v", err)
	}
	if err := w.Write([]map[string]interface{}{
		{"name": "Widget", "price": "19.99"},
	}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := w.Write([]map[string]interface{}{
		{"name": "Gadget"},
	}); err != nil {
		t.Fatalf("second Write returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output file: %v", err)
	}

	var got []map[string]interface{}
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("output holds %d records, want 2", len(got))
	}
	if got[0]["price"] != "19.99" {
		t.Errorf("got[0][price] = %v, want 19.99", got[0]["price"])
	}
}
