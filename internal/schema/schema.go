// Package schema validates raw capture lines against the embedded browser
// event JSON schema before they are normalized.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed browser-event.schema.json
var browserEventSchema []byte

const browserEventURL = "browser-event.schema.json"

// ErrInvalidEvent wraps schema and decoding failures.
var ErrInvalidEvent = errors.New("schema: invalid event")

// Validator checks raw JSON events. It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewBrowserValidator compiles the embedded browser event schema.
func NewBrowserValidator() (*Validator, error) {
	return Compile(browserEventURL, browserEventSchema)
}

// Compile builds a Validator from a schema document.
func Compile(url string, doc []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate decodes raw and checks it against the schema.
func (v *Validator) Validate(raw []byte) error {
	var instance any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := v.schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}
