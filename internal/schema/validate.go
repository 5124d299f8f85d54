// Package schema validates suite and plan documents against embedded JSON schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed *.schema.json
var schemaFS embed.FS

var (
	suiteSchema *jsonschema.Schema
	planSchema  *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{"suite.schema.json", "plan.schema.json"} {
			data, err := schemaFS.ReadFile(name)
			if err != nil {
				compileErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("unmarshal %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				compileErr = fmt.Errorf("add %s resource: %w", name, err)
				return
			}
		}

		var err error
		if suiteSchema, err = compiler.Compile("suite.schema.json"); err != nil {
			compileErr = fmt.Errorf("compile suite schema: %w", err)
			return
		}
		if planSchema, err = compiler.Compile("plan.schema.json"); err != nil {
			compileErr = fmt.Errorf("compile plan schema: %w", err)
			return
		}
	})
	return compileErr
}

// ValidateSuiteYAML validates a YAML suite document.
func ValidateSuiteYAML(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	return validateYAML(suiteSchema, data, "suite")
}

// ValidatePlanYAML validates a YAML plan document.
func ValidatePlanYAML(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}
	return validateYAML(planSchema, data, "plan")
}

// validateYAML converts YAML to its JSON data model before validating, so
// numbers and maps have the types the validator expects.
func validateYAML(s *jsonschema.Schema, data []byte, kind string) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s is not representable as JSON: %w", kind, err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s validation failed: %w", kind, err)
	}
	return nil
}
