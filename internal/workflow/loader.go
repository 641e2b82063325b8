package workflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultWorkflowDir points to the conventional location for YAML workflow
// definitions when loading from disk.
const DefaultWorkflowDir = "workflows"

// ParseDefinitionYAML decodes a workflow definition from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Workflow{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return Workflow{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	wf.Name = strings.TrimSpace(wf.Name)
	wf.Description = strings.TrimSpace(wf.Description)
	for i := range wf.Steps {
		wf.Steps[i].ID = strings.TrimSpace(wf.Steps[i].ID)
		wf.Steps[i].Action = strings.TrimSpace(wf.Steps[i].Action)
		wf.Steps[i].Description = strings.TrimSpace(wf.Steps[i].Description)
	}
	if err := wf.Validate(); err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

// LoadDefinitionReader reads workflow definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Workflow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Workflow{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a workflow definition from an explicit file path.
func LoadDefinitionFile(path string) (Workflow, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	wf, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Workflow{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return wf, nil
}

// LoadDefinitionRelative loads a definition from the workflows directory (or a
// custom baseDir if provided). A name without extension is tried as .yaml
// then .yml.
func LoadDefinitionRelative(baseDir, name string) (Workflow, error) {
	if baseDir == "" {
		baseDir = DefaultWorkflowDir
	}
	path := filepath.Join(baseDir, name)
	if filepath.Ext(name) == "" {
		for _, ext := range []string{".yaml", ".yml"} {
			if _, err := os.Stat(path + ext); err == nil {
				return LoadDefinitionFile(path + ext)
			}
		}
	}
	return LoadDefinitionFile(path)
}
