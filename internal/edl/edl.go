package edl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"cutline/internal/services"
)

// Op is one edit instruction.
type Op struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Document is the file form of an instruction list.
type Document struct {
	Ops []Op `json:"ops" yaml:"ops"`
}

const maxTypeLength = 64

// Validate checks that ops is a non-empty list of well-formed instructions.
func Validate(ops []Op) error {
	if len(ops) == 0 {
		return services.Wrap(services.ErrValidation, "edl", "validate", "instruction list is empty", nil)
	}
	for i, op := range ops {
		kind := strings.TrimSpace(op.Type)
		if kind == "" {
			return services.Wrap(services.ErrValidation, "edl", "validate", fmt.Sprintf("op %d has no type", i), nil)
		}
		if len(kind) > maxTypeLength {
			return services.Wrap(services.ErrValidation, "edl", "validate", fmt.Sprintf("op %d type exceeds %d characters", i, maxTypeLength), nil)
		}
		if _, err := json.Marshal(op.Params); err != nil {
			return services.Wrap(services.ErrValidation, "edl", "validate", fmt.Sprintf("op %d params are not encodable", i), err)
		}
	}
	return nil
}

// Marshal encodes ops in their canonical JSON storage form.
func Marshal(ops []Op) ([]byte, error) {
	if ops == nil {
		ops = []Op{}
	}
	return json.Marshal(ops)
}

// Unmarshal decodes the canonical JSON storage form.
func Unmarshal(data []byte) ([]Op, error) {
	var ops []Op
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// Format identifies an instruction file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath guesses the encoding from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode reads an instruction file. Both a bare list and a {ops: [...]}
// document are accepted. The result is validated.
func Decode(r io.Reader, format Format) ([]Op, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read instructions: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "edl", "decode", "instruction file is empty", nil)
	}

	var ops []Op
	switch format {
	case FormatYAML:
		ops, err = decodeYAML(data)
	case FormatJSON, "":
		ops, err = decodeJSON(data)
	default:
		return nil, services.Wrap(services.ErrValidation, "edl", "decode", fmt.Sprintf("unsupported format %q", format), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "edl", "decode", "malformed instruction file", err)
	}
	if err := Validate(ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func decodeJSON(data []byte) ([]Op, error) {
	if data[0] == '[' {
		return Unmarshal(data)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Ops, nil
}

func decodeYAML(data []byte) ([]Op, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, errors.New("empty yaml document")
	}
	root := node.Content[0]
	var ops []Op
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&ops); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var doc Document
		if err := root.Decode(&doc); err != nil {
			return nil, err
		}
		ops = doc.Ops
	default:
		return nil, errors.New("yaml document must be a list or an ops mapping")
	}
	// Round trip through JSON so nested params use JSON-compatible types.
	encoded, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	return Unmarshal(encoded)
}
