// Package schemas compiles and caches JSON Schemas used to validate the
// knowledge table and dataset rows before they are decoded.
package schemas

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache caches compiled schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// ValidationError wraps a schema violation with the document it came from.
type ValidationError struct {
	Schema string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate against %s: %v", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Compile returns the compiled schema registered under name, compiling and
// caching definition on first use.
func Compile(name string, definition []byte) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler takes a parsed value, not raw bytes.
	var defParsed any
	if err := json.Unmarshal(definition, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, defParsed); err != nil {
		return nil, fmt.Errorf("add resource %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}

// Validate checks raw JSON against the named schema.
func Validate(name string, definition []byte, raw []byte) error {
	compiled, err := Compile(name, definition)
	if err != nil {
		return err
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &ValidationError{Schema: name, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := compiled.Validate(parsed); err != nil {
		return &ValidationError{Schema: name, Err: err}
	}
	return nil
}
