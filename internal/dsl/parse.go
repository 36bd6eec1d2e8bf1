package dsl

import (
	"fmt"

	"github.com/noetl/noetl/internal/apperrors"
	"gopkg.in/yaml.v3"
)

// Parse decodes raw YAML into a Playbook and runs full validation
// (struct tags then the step-graph semantic pass).
func Parse(content []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(content, &pb); err != nil {
		return nil, apperrors.NewValidationError("content", fmt.Sprintf("parse yaml: %v", err))
	}
	if err := Validate(&pb); err != nil {
		return nil, err
	}
	return &pb, nil
}

// ExtractKind reads just the top-level kind field, without decoding
// the full document. Used by the catalog register handler to report a
// clean error before attempting full step-graph validation.
func ExtractKind(content []byte) (string, error) {
	var probe struct {
		Kind string `yaml:"kind"`
	}
	if err := yaml.Unmarshal(content, &probe); err != nil {
		return "", apperrors.NewValidationError("content", fmt.Sprintf("parse yaml: %v", err))
	}
	if probe.Kind == "" {
		return "", apperrors.NewValidationError("kind", "missing 'kind' field")
	}
	return probe.Kind, nil
}

// ExtractMetadata reads the metadata.name/path/description fields
// without decoding the full document.
func ExtractMetadata(content []byte) (name, path, description string, err error) {
	var probe struct {
		Metadata *struct {
			Name        string `yaml:"name"`
			Path        string `yaml:"path"`
			Description string `yaml:"description"`
		} `yaml:"metadata"`
	}
	if err := yaml.Unmarshal(content, &probe); err != nil {
		return "", "", "", apperrors.NewValidationError("content", fmt.Sprintf("parse yaml: %v", err))
	}
	if probe.Metadata == nil {
		return "", "", "", apperrors.NewValidationError("metadata", "missing 'metadata' field")
	}
	if probe.Metadata.Name == "" {
		return "", "", "", apperrors.NewValidationError("metadata.name", "missing 'metadata.name' field")
	}
	return probe.Metadata.Name, probe.Metadata.Path, probe.Metadata.Description, nil
}
