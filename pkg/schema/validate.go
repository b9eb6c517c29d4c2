package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed graph.schema.json
var graphSchemaJSON []byte

var (
	graphSchemaOnce sync.Once
	graphSchema     *gojsonschema.Schema
	graphSchemaErr  error
)

// GraphSchema returns the raw JSON Schema of graph documents.
func GraphSchema() []byte {
	return graphSchemaJSON
}

func compiled() (*gojsonschema.Schema, error) {
	graphSchemaOnce.Do(func() {
		graphSchema, graphSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(graphSchemaJSON))
	})
	return graphSchema, graphSchemaErr
}

// ValidateGraph checks a decoded graph document against the graph schema.
// Returns an *AggregateError listing every violation.
func ValidateGraph(doc any) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("failed to compile graph schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate graph document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]error, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, &ValidationError{
			Field:  re.Field(),
			Reason: re.Description(),
			Value:  re.Value(),
		})
	}
	return &AggregateError{Errors: errs}
}
