// internal/template/load.go
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valpere/DeepScrapexter/internal/scrapererr"
)

// LoadFromFile loads a template from a YAML or JSON file
func LoadFromFile(filename string) (*Template, error) {
	if filename == "" {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("template filename cannot be empty")}
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, &scrapererr.TemplateError{Path: filename, Err: fmt.Errorf("file not found")}
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &scrapererr.TemplateError{Path: filename, Err: fmt.Errorf("failed to read file: %v", err)}
	}

	tpl, err := LoadFromBytes(data)
	if err != nil {
		var tplErr *scrapererr.TemplateError
		if errors.As(err, &tplErr) && tplErr.Path == "" {
			tplErr.Path = filename
		}
		return nil, err
	}
	if tpl.Name == "" {
		tpl.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return tpl, nil
}

// LoadFromBytes loads a template from YAML or JSON bytes
func LoadFromBytes(data []byte) (*Template, error) {
	tpl, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// ParseBytes decodes a template and applies defaults without validating
// it. Callers that want every problem reported at once run
// ValidateDetailed on the result instead of relying on the first error.
func ParseBytes(data []byte) (*Template, error) {
	if len(data) == 0 {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("template data cannot be empty")}
	}

	// Substitute environment variables so DSNs and cookies can stay out of
	// version control.
	expanded := os.ExpandEnv(string(data))

	var tpl Template
	trimmed := strings.TrimSpace(expanded)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(expanded), &tpl); err != nil {
			return nil, &scrapererr.TemplateError{Err: fmt.Errorf("failed to parse JSON template: %v", err)}
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &tpl); err != nil {
			return nil, &scrapererr.TemplateError{Err: fmt.Errorf("failed to parse YAML template: %v", err)}
		}
	}

	applyDefaults(&tpl)
	return &tpl, nil
}

// LoadFromReader loads a template from an io.Reader
func LoadFromReader(reader io.Reader) (*Template, error) {
	if reader == nil {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("reader cannot be nil")}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("failed to read from reader: %v", err)}
	}

	return LoadFromBytes(data)
}

// SaveToFile saves a template to a YAML file
func SaveToFile(tpl *Template, filename string) error {
	if tpl == nil {
		return &scrapererr.TemplateError{Err: fmt.Errorf("template cannot be nil")}
	}
	if filename == "" {
		return &scrapererr.TemplateError{Err: fmt.Errorf("filename cannot be empty")}
	}

	if err := tpl.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(tpl)
	if err != nil {
		return &scrapererr.TemplateError{Path: filename, Err: fmt.Errorf("failed to marshal template: %v", err)}
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &scrapererr.TemplateError{Path: filename, Err: fmt.Errorf("failed to create directory: %v", err)}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return &scrapererr.TemplateError{Path: filename, Err: fmt.Errorf("failed to write file: %v", err)}
	}

	return nil
}

// applyDefaults applies default values to the template
func applyDefaults(tpl *Template) {
	if tpl.WaitTimeoutSeconds == 0 {
		tpl.WaitTimeoutSeconds = 30
	}
	if tpl.PageLoadTimeoutSeconds == 0 {
		tpl.PageLoadTimeoutSeconds = 60
	}
	if tpl.SubpageOnlyThreshold == 0 {
		tpl.SubpageOnlyThreshold = 0.7
	}

	// Subpage fields imply link following. Templates that declare them
	// without the flag mean to follow.
	if tpl.Container != nil && len(tpl.Container.SubpageFields) > 0 {
		tpl.Container.FollowLinks = true
	}

	if tpl.Pagination != nil {
		if tpl.Pagination.StartPage == 0 {
			tpl.Pagination.StartPage = 1
		}
		if tpl.Pagination.ScrollPauseSeconds == 0 {
			tpl.Pagination.ScrollPauseSeconds = 2
		}
	}

	if tpl.Output != nil && tpl.Output.Format == "" {
		tpl.Output.Format = "json"
	}
}
