package entity

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// compileSchemas loads one JSON Schema per record variant.
func compileSchemas() (map[Kind]*gojsonschema.Schema, error) {
	kinds := []Kind{KindAddress, KindDispute, KindStatement, KindPayment, KindCard, KindGeneric}
	out := make(map[Kind]*gojsonschema.Schema, len(kinds))
	for _, k := range kinds {
		data, err := schemaFS.ReadFile("schemas/" + string(k) + ".json")
		if err != nil {
			return nil, fmt.Errorf("reading %s schema: %w", k, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

// validateFields checks normalised fields against the variant schema.
func validateFields(s *gojsonschema.Schema, fields map[string]any) error {
	result, err := s.Validate(gojsonschema.NewGoLoader(fields))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.String())
	}
	return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
}
