package definition

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/definition.json
var documentSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(documentSchema))
})

// Document is the serialized form of a process definition, as found in YAML or
// JSON definition files.
type Document struct {
	Key        string     `json:"key"            yaml:"key"`
	Version    int        `json:"version"        yaml:"version"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Activities []Activity `json:"activities"     yaml:"activities"`
}

// Parse validates data, a YAML or JSON document, against the definition schema
// and builds the definition it describes.
func Parse(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse definition document: %w", err)
	}

	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode definition document: %w", err)
	}

	return New(doc)
}

// LoadFile reads and parses a definition document from path.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("definition file %s: %w", path, err)
	}

	return def, nil
}

func validateDocument(raw any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile definition schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(errors, "; "))
	}

	return nil
}
