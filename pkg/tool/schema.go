package tool

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema object for T.
//
// Fields are optional unless tagged jsonschema:"required". Unknown properties
// are rejected (additionalProperties: false). Types may refine the reflected
// schema through a JSONSchemaExtend(*jsonschema.Schema) method. A struct with
// no fields yields an object schema that accepts only {}. Anonymous structs
// with fields are rejected; declare a named type instead.
func SchemaFor[T any]() (map[string]any, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool arguments must be a struct, got %s", t.Kind())
	}
	if t.NumField() == 0 {
		return map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		}, nil
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("tool arguments must be a named struct type, got %s", t)
	}

	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
		AllowAdditionalProperties:  false,
	}

	schema := reflector.ReflectFromType(t)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw["type"] != "object" {
		return nil, fmt.Errorf("tool arguments must be a struct, got schema type %v", raw["type"])
	}

	out := map[string]any{
		"type":                 "object",
		"properties":           raw["properties"],
		"additionalProperties": false,
	}
	if out["properties"] == nil {
		out["properties"] = map[string]any{}
	}
	if req, ok := raw["required"]; ok {
		out["required"] = req
	}
	return out, nil
}
