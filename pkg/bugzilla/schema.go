package bugzilla

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Sentinel errors for bug records.
var (
	// ErrMalformedBug indicates a record that lacks a required field or has a wrongly typed one.
	ErrMalformedBug = errors.New("malformed bug record")
	// ErrUnknownField indicates a field name that the record does not model.
	ErrUnknownField = errors.New("unknown bug field")
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Violation is a single schema violation of a raw bug record.
type Violation struct {
	Field       string
	Description string
	Value       any
}

// String renders the violation as "field: description".
func (v Violation) String() string {
	return v.Field + ": " + v.Description
}

// Validate checks a raw JSON bug record against the bug schema.
// It returns the violations found; the error is reserved for unreadable input.
func Validate(raw []byte) ([]Violation, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile bug schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate bug record: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]Violation, 0, len(result.Errors()))

	for _, resultErr := range result.Errors() {
		violations = append(violations, Violation{
			Field:       resultErr.Field(),
			Description: resultErr.Description(),
			Value:       resultErr.Value(),
		})
	}

	return violations, nil
}

// SchemaJSON returns the embedded bug record schema.
func SchemaJSON() []byte {
	return schemaJSON
}
